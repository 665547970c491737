package cleaner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// ErrBadSchema matches every structural error returned by Normalize
var ErrBadSchema = errors.New("bad schema")

// requiredColumns must be present somewhere in a batch
var requiredColumns = []string{model.ColISOCode, model.ColDate}

// SchemaError reports a batch that cannot be normalized at all.
// Row-level problems never produce it.
type SchemaError struct {
	Missing []string
	Reason  string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("bad schema: missing required column(s) %s", strings.Join(e.Missing, ", "))
	}
	return "bad schema: " + e.Reason
}

// Is lets errors.Is(err, ErrBadSchema) match any SchemaError
func (e *SchemaError) Is(target error) bool {
	return target == ErrBadSchema
}

// Normalize turns a raw batch into a sorted, deduplicated and enriched batch.
//
// Steps run in a fixed order: parse dates, stable sort by (iso_code, date)
// with unknown dates first, drop rows with no vaccination counts, expand
// manufacturer columns across the surviving rows, keep the first row per
// (iso_code, date), then derive fully_vaccinated_ratio.
//
// Normalize does no I/O and keeps no state between calls.
func Normalize(batch *model.RawBatch) (*model.CleanedBatch, error) {
	if batch == nil {
		return nil, &SchemaError{Reason: "nil batch"}
	}
	if err := checkSchema(batch); err != nil {
		return nil, err
	}

	out := &model.CleanedBatch{}
	out.Report.InputRows = len(batch.Records)

	records := make([]model.CleanedRecord, 0, len(batch.Records))
	for i, raw := range batch.Records {
		rec, operations := parseRecord(raw, i+1)
		for _, op := range operations {
			switch op.CleaningOperation {
			case model.OpDateParseFailed:
				out.Report.UnparsableDates++
			case model.OpNumericParseFailed:
				out.Report.UnparsableNumbers++
			}
		}
		records = append(records, rec)
		out.Operations = append(out.Operations, operations...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return less(&records[i], &records[j])
	})

	kept := records[:0]
	for i := range records {
		if records[i].HasSignal() {
			kept = append(kept, records[i])
			continue
		}
		out.Report.DroppedEmpty++
		out.Operations = append(out.Operations, model.CleaningOperation{
			RowIdentifier:     rowIdentifier(&records[i]),
			NewValue:          "DROPPED",
			CleaningOperation: model.OpDroppedEmptySignal,
			CleaningReason:    "no_vaccination_counts",
		})
	}
	records = kept

	out.Manufacturers = collectManufacturers(records)
	expandManufacturers(records, out.Manufacturers)

	seen := make(map[string]int, len(records))
	unique := records[:0]
	for i := range records {
		key := records[i].Key()
		if first, dup := seen[key]; dup {
			out.Report.DroppedDuplicates++
			out.Operations = append(out.Operations, model.CleaningOperation{
				RowIdentifier:     rowIdentifier(&records[i]),
				NewValue:          "DROPPED",
				CleaningOperation: model.OpDroppedDuplicate,
				CleaningReason:    fmt.Sprintf("duplicate_of_row_%d", first),
			})
			continue
		}
		seen[key] = records[i].Row
		unique = append(unique, records[i])
	}
	records = unique

	for i := range records {
		records[i].FullyVaccinatedRatio = fullyVaccinatedRatio(&records[i])
	}

	out.Records = records
	out.Report.OutputRows = len(records)
	return out, nil
}

// checkSchema fails when a required column is absent from the whole batch
func checkSchema(batch *model.RawBatch) error {
	var missing []string
	for _, col := range requiredColumns {
		if !batch.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// less orders by iso_code, then date with unknown dates first
func less(a, b *model.CleanedRecord) bool {
	if a.ISOCode != b.ISOCode {
		return a.ISOCode < b.ISOCode
	}
	switch {
	case a.Date == nil:
		return b.Date != nil
	case b.Date == nil:
		return false
	default:
		return a.Date.Before(*b.Date)
	}
}
