package cleaner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// dateFormats are tried in order when parsing the date column
var dateFormats = []string{
	model.DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
}

// toDate parses a raw date into a UTC calendar date
func toDate(value string) (time.Time, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return time.Time{}, errors.New("empty string")
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, cleaned); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse date from '%s'", cleaned)
}

// toFloat attempts to convert a raw value to float64
func toFloat(value string) (float64, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, errors.New("empty string")
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value '%s'", cleaned)
	}
	return f, nil
}

// toNullableString returns nil for a null raw value
func toNullableString(raw model.RawRecord, col string) *string {
	v, ok := raw.Get(col)
	if !ok {
		return nil
	}
	return &v
}

// rowIdentifier builds the identifier recorded with each cleaning operation
func rowIdentifier(rec *model.CleanedRecord) string {
	date := rec.DateString()
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s@%s#%d", rec.ISOCode, date, rec.Row)
}

// numericColumns lists every numeric column and where it lands on a record
func numericColumns(rec *model.CleanedRecord) []struct {
	name string
	dst  **float64
} {
	return []struct {
		name string
		dst  **float64
	}{
		{model.ColTotalVaccinations, &rec.TotalVaccinations},
		{model.ColPeopleVaccinated, &rec.PeopleVaccinated},
		{model.ColPeopleFullyVaccinated, &rec.PeopleFullyVaccinated},
		{model.ColDailyVaccinationsRaw, &rec.DailyVaccinationsRaw},
		{model.ColDailyVaccinations, &rec.DailyVaccinations},
		{model.ColTotalVaccinationsPerHundred, &rec.TotalVaccinationsPerHundred},
		{model.ColPeopleVaccinatedPerHundred, &rec.PeopleVaccinatedPerHundred},
		{model.ColPeopleFullyVaccinatedPerHundred, &rec.PeopleFullyVaccinatedPerHundred},
		{model.ColDailyVaccinationsPerMillion, &rec.DailyVaccinationsPerMillion},
	}
}

// parseRecord converts a raw row into a typed record.
// Bad dates and numbers become nil and are reported as operations.
func parseRecord(raw model.RawRecord, row int) (model.CleanedRecord, []model.CleaningOperation) {
	rec := model.CleanedRecord{Row: row}
	rec.ISOCode, _ = raw.Get(model.ColISOCode)
	rec.Country, _ = raw.Get(model.ColCountry)
	rec.Location, _ = raw.Get(model.ColLocation)
	rec.Vaccines = toNullableString(raw, model.ColVaccines)
	rec.SourceName = toNullableString(raw, model.ColSourceName)
	rec.SourceWebsite = toNullableString(raw, model.ColSourceWebsite)

	var operations []model.CleaningOperation

	dateText, hasDate := raw.Get(model.ColDate)
	if hasDate {
		if d, err := toDate(dateText); err == nil {
			rec.Date = &d
		}
	}
	if rec.Date == nil {
		var original interface{}
		if hasDate {
			original = dateText
		}
		operations = append(operations, model.CleaningOperation{
			ColumnName:        model.ColDate,
			OriginalValue:     original,
			NewValue:          "NULL",
			CleaningOperation: model.OpDateParseFailed,
			CleaningReason:    "unparsable_date",
		})
	}

	for _, col := range numericColumns(&rec) {
		v, ok := raw.Get(col.name)
		if !ok {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			operations = append(operations, model.CleaningOperation{
				ColumnName:        col.name,
				OriginalValue:     v,
				NewValue:          "NULL",
				CleaningOperation: model.OpNumericParseFailed,
				CleaningReason:    fmt.Sprintf("cannot_convert_to_float: %v", err),
			})
			continue
		}
		*col.dst = &f
	}

	id := rowIdentifier(&rec)
	for i := range operations {
		operations[i].RowIdentifier = id
	}

	return rec, operations
}

// fullyVaccinatedRatio divides fully vaccinated people by total doses.
// Null operands or a zero denominator give nil.
func fullyVaccinatedRatio(rec *model.CleanedRecord) *float64 {
	if rec.PeopleFullyVaccinated == nil || rec.TotalVaccinations == nil {
		return nil
	}
	if *rec.TotalVaccinations == 0 {
		return nil
	}
	ratio := *rec.PeopleFullyVaccinated / *rec.TotalVaccinations
	return &ratio
}
