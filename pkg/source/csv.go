package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// ErrNotTabular is returned when input cannot be read as a table
var ErrNotTabular = errors.New("input is not tabular")

// ReadCSV reads a whole delimited file with a header row into a RawBatch
func ReadCSV(r io.Reader) (*model.RawBatch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0 // every row must match the header width

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty input", ErrNotTabular)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrNotTabular, err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		columns[i] = strings.TrimSpace(h)
	}

	batch := &model.RawBatch{Columns: columns}
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotTabular, err)
		}

		rec := make(model.RawRecord, len(columns))
		for i, col := range columns {
			rec[col] = fields[i]
		}
		batch.Records = append(batch.Records, rec)
	}

	return batch, nil
}

// CSVFile reads raw records from a CSV file on disk
type CSVFile struct {
	Path string
}

// Name identifies the source in logs
func (f CSVFile) Name() string {
	return "csv:" + f.Path
}

// Read loads the whole file
func (f CSVFile) Read(_ context.Context) (*model.RawBatch, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	defer file.Close()

	batch, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	return batch, nil
}

// CleanedColumns returns the header written by WriteCSV for a batch
func CleanedColumns(batch *model.CleanedBatch) []string {
	columns := model.VaccinationsMetadata().ColumnNames()
	columns = append(columns, batch.ManufacturerColumns()...)
	return append(columns, model.ColFullyVaccinatedRatio)
}

// WriteCSV writes a cleaned batch, including its derived columns.
// Null values are written as empty fields.
func WriteCSV(w io.Writer, batch *model.CleanedBatch) error {
	writer := csv.NewWriter(w)
	columns := CleanedColumns(batch)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	manufacturers := batch.ManufacturerColumns()
	for i := range batch.Records {
		rec := &batch.Records[i]
		fields := []string{
			rec.ISOCode,
			rec.Country,
			rec.Location,
			rec.DateString(),
			formatFloat(rec.TotalVaccinations),
			formatFloat(rec.PeopleVaccinated),
			formatFloat(rec.PeopleFullyVaccinated),
			formatFloat(rec.DailyVaccinationsRaw),
			formatFloat(rec.DailyVaccinations),
			formatFloat(rec.TotalVaccinationsPerHundred),
			formatFloat(rec.PeopleVaccinatedPerHundred),
			formatFloat(rec.PeopleFullyVaccinatedPerHundred),
			formatFloat(rec.DailyVaccinationsPerMillion),
			formatString(rec.Vaccines),
			formatString(rec.SourceName),
			formatString(rec.SourceWebsite),
		}
		for _, col := range manufacturers {
			fields = append(fields, strconv.FormatBool(rec.Manufacturers[col]))
		}
		fields = append(fields, formatFloat(rec.FullyVaccinatedRatio))

		if err := writer.Write(fields); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rec.Row, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
