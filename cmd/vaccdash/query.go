package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/David-Botos/vaccine-ingress/pkg/chart"
	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// dateRange holds the --start/--end flags
type dateRange struct {
	start, end string
}

func (r *dateRange) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.start, "start", "", "First date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&r.end, "end", "", "Last date, inclusive (YYYY-MM-DD)")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
}

func (r *dateRange) parse() (time.Time, time.Time, error) {
	start, err := time.Parse(model.DateLayout, r.start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q: %w", r.start, err)
	}
	end, err := time.Parse(model.DateLayout, r.end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q: %w", r.end, err)
	}
	return start, end, nil
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		iso     string
		country string
		dates   dateRange
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the rows of one country in a date range as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (iso == "") == (country == "") {
				return errors.New("exactly one of --iso or --country is required")
			}
			start, end, err := dates.parse()
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if iso != "" {
					rows, err := a.gateway.QueryByISO(ctx, iso, start, end)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), rows)
				}
				rows, err := a.gateway.QueryByCountry(ctx, country, start, end)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().StringVar(&iso, "iso", "", "ISO 3166 alpha-3 code, e.g. ALB")
	cmd.Flags().StringVar(&country, "country", "", "Country name, e.g. Albania")
	dates.bind(cmd)
	return cmd
}

func newCountVaccineCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count-vaccine <name>",
		Short: "Count the countries whose vaccines field mentions a vaccine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				count, err := a.gateway.CountCountriesUsingVaccine(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	}
}

func newChartCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Print chart data as JSON",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "source",
		Short: "Share of rows per data source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				counts, err := a.gateway.SourceDistribution(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), chart.SourceDistribution(counts))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "vaccines",
		Short: "Share of rows per vaccine manufacturer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				split, err := a.gateway.VaccineSplit(ctx)
				if err != nil {
					return err
				}
				if len(split) == 0 {
					a.logger.Warn("No manufacturer columns found; load with PERSIST_ENRICHMENT=true")
				}
				return writeJSON(cmd.OutOrStdout(), chart.VaccineSplit(split))
			})
		},
	})

	var (
		country string
		dates   dateRange
	)
	daily := &cobra.Command{
		Use:   "daily",
		Short: "Daily vaccinations of one country over a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dates.parse()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rows, err := a.gateway.QueryByCountry(ctx, country, start, end)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), chart.DailyVaccinations(country, dates.start, dates.end, rows))
			})
		},
	}
	daily.Flags().StringVar(&country, "country", "", "Country name, e.g. Albania")
	daily.MarkFlagRequired("country")
	dates.bind(daily)
	cmd.AddCommand(daily)

	return cmd
}
