package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/cleaner"
	"github.com/David-Botos/vaccine-ingress/pkg/ingest"
	"github.com/David-Botos/vaccine-ingress/pkg/source"
)

func newInitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the vaccinations table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.store.Validate(ctx); err != nil {
					return fmt.Errorf("error validating store: %w", err)
				}
				return a.gateway.EnsureSchema(ctx)
			})
		},
	}
}

func newLoadCmd(opts *globalOptions) *cobra.Command {
	var (
		csvPath       string
		fromTable     string
		fromSnowflake bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Normalize a source and append it to the store",
		Long: `The load command reads the raw dataset from a CSV file, a table in the store
(--from-table) or the configured Snowflake table (--from-snowflake), normalizes
it and appends the cleaned records. The store row count is checked afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, set := range []bool{csvPath != "", fromTable != "", fromSnowflake} {
				if set {
					selected++
				}
			}
			if selected != 1 {
				return errors.New("exactly one of --csv, --from-table or --from-snowflake is required")
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				src, closeSource, err := openSource(ctx, a, csvPath, fromTable, fromSnowflake)
				if err != nil {
					return err
				}
				defer closeSource()

				pipelineOpts := []ingest.Option{ingest.WithVerifyTimeout(a.cfg.QueryTimeout)}
				if a.cfg.AuditCleaning {
					auditor, err := cleaner.NewDataCleaner(ctx, a.store.DB(), a.logger)
					if err != nil {
						return err
					}
					pipelineOpts = append(pipelineOpts, ingest.WithAuditor(auditor))
				}

				metrics, runErr := ingest.NewPipeline(a.gateway, a.logger, pipelineOpts...).Run(ctx, a.runID, src)
				if asJSON {
					data, err := metrics.ToJSON()
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
				} else {
					fmt.Fprint(cmd.OutOrStdout(), metrics.GenerateReport())
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Path of the raw CSV file")
	cmd.Flags().StringVar(&fromTable, "from-table", "", "Read the raw rows from this table in the store")
	cmd.Flags().BoolVar(&fromSnowflake, "from-snowflake", false, "Read the raw rows from SNOWFLAKE_SOURCE_TABLE")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print run metrics as JSON")
	return cmd
}

// openSource builds the selected source and a function releasing it
func openSource(ctx context.Context, a *app, csvPath, fromTable string, fromSnowflake bool) (ingest.Source, func(), error) {
	switch {
	case csvPath != "":
		return source.CSVFile{Path: csvPath}, func() {}, nil

	case fromTable != "":
		src, err := source.NewTableSource(a.store, fromTable, a.cfg.QueryTimeout, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil

	default:
		conn, err := a.factory.CreateSnowflakeConnector(ctx)
		if err != nil {
			return nil, nil, err
		}
		if err := conn.Validate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("error validating Snowflake: %w", err)
		}
		timeout := a.cfg.QueryTimeout
		if a.cfg.Snowflake.QueryTimeout > 0 {
			timeout = a.cfg.Snowflake.QueryTimeout
		}
		src, err := source.NewTableSource(conn, conn.SourceTable(), timeout, a.logger)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return src, func() {
			if err := conn.Close(); err != nil {
				a.logger.Warn("Failed to close Snowflake connection", zap.Error(err))
			}
		}, nil
	}
}

func newCleanCmd(opts *globalOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "clean <raw.csv>",
		Short: "Normalize a CSV file without touching the store",
		Long: `The clean command writes the normalized records, with their manufacturer
columns and fully_vaccinated_ratio, as CSV to --out or stdout. The cleaning
report is printed to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := loadSettings(opts)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			raw, err := source.CSVFile{Path: args[0]}.Read(cmd.Context())
			if err != nil {
				return err
			}
			cleaned, err := cleaner.Normalize(raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("error creating %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}
			if err := source.WriteCSV(out, cleaned); err != nil {
				return err
			}

			logger.Info("Normalized file",
				zap.String("input", args[0]),
				zap.Int("input_rows", cleaned.Report.InputRows),
				zap.Int("output_rows", cleaned.Report.OutputRows))
			return writeJSON(cmd.ErrOrStderr(), cleaned.Report)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the cleaned CSV to this path instead of stdout")
	return cmd
}

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <raw.csv>",
		Short: "Check that the store holds exactly the cleaned rows of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				raw, err := source.CSVFile{Path: args[0]}.Read(ctx)
				if err != nil {
					return err
				}
				cleaned, err := cleaner.Normalize(raw)
				if err != nil {
					return err
				}

				report, err := ingest.NewVerifier(a.gateway, a.logger).
					WithTimeout(a.cfg.QueryTimeout).
					VerifyRowCount(ctx, int64(len(cleaned.Records)))
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.RowCountMatches {
					return fmt.Errorf("%w: expected %d, store has %d",
						ingest.ErrRowCountMismatch, report.ExpectedRowCount, report.StoreRowCount)
				}
				return nil
			})
		},
	}
}
