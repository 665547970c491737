package cleaner

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

var testColumns = []string{
	model.ColCountry,
	model.ColISOCode,
	model.ColDate,
	model.ColTotalVaccinations,
	model.ColPeopleVaccinated,
	model.ColPeopleFullyVaccinated,
	model.ColVaccines,
}

func row(iso, date, total, people, fully string) model.RawRecord {
	return model.RawRecord{
		model.ColCountry:               "Aland",
		model.ColISOCode:               iso,
		model.ColDate:                  date,
		model.ColTotalVaccinations:     total,
		model.ColPeopleVaccinated:      people,
		model.ColPeopleFullyVaccinated: fully,
	}
}

func batchOf(records ...model.RawRecord) *model.RawBatch {
	return &model.RawBatch{Columns: testColumns, Records: records}
}

func dates(t *testing.T, batch *model.CleanedBatch) []string {
	t.Helper()
	out := make([]string, len(batch.Records))
	for i, r := range batch.Records {
		out[i] = r.DateString()
	}
	return out
}

func TestNormalize_SortsByDateWithinISO(t *testing.T) {
	out, err := Normalize(batchOf(
		row("ALA", "2021-01-02", "200", "150", "70"),
		row("ALA", "2021-01-01", "100", "50", "20"),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"2021-01-01", "2021-01-02"}, dates(t, out))
	require.NotNil(t, out.Records[0].Date)
	assert.Equal(t, 100.0, *out.Records[0].TotalVaccinations)
}

func TestNormalize_PreservesPartialNulls(t *testing.T) {
	out, err := Normalize(batchOf(
		row("ALA", "2021-01-01", "100", "50", "20"),
		row("ALA", "2021-01-02", "", "150", ""),
		row("ALA", "2021-01-03", "300", "", "80"),
	))
	require.NoError(t, err)
	require.Len(t, out.Records, 3)

	assert.Equal(t, 100.0, *out.Records[0].TotalVaccinations)
	assert.Nil(t, out.Records[1].TotalVaccinations)
	assert.Equal(t, 150.0, *out.Records[1].PeopleVaccinated)
	assert.Nil(t, out.Records[1].PeopleFullyVaccinated)
	assert.Nil(t, out.Records[2].PeopleVaccinated)
	assert.Equal(t, 80.0, *out.Records[2].PeopleFullyVaccinated)
	assert.Zero(t, out.Report.DroppedEmpty)
}

func TestNormalize_ManufacturerColumns(t *testing.T) {
	a := row("ALA", "2021-01-01", "100", "50", "20")
	a[model.ColVaccines] = "Pfizer/BioNTech, Moderna"
	b := row("ALA", "2021-01-02", "200", "150", "70")
	b[model.ColVaccines] = "Moderna, AstraZeneca"

	out, err := Normalize(batchOf(a, b))
	require.NoError(t, err)

	assert.Equal(t, []model.Manufacturer{
		{Name: "Pfizer/BioNTech", Column: "vaccine_Pfizer_BioNTech"},
		{Name: "Moderna", Column: "vaccine_Moderna"},
		{Name: "AstraZeneca", Column: "vaccine_AstraZeneca"},
	}, out.Manufacturers)

	first := out.Records[0].Manufacturers
	assert.True(t, first["vaccine_Pfizer_BioNTech"])
	assert.True(t, first["vaccine_Moderna"])
	assert.False(t, first["vaccine_AstraZeneca"])

	second := out.Records[1].Manufacturers
	assert.False(t, second["vaccine_Pfizer_BioNTech"])
	assert.True(t, second["vaccine_Moderna"])
	assert.True(t, second["vaccine_AstraZeneca"])
}

func TestNormalize_MissingVaccinesIsAllFalse(t *testing.T) {
	a := row("ALA", "2021-01-01", "100", "50", "20")
	a[model.ColVaccines] = "Sputnik V"
	b := row("ALA", "2021-01-02", "200", "150", "70")

	out, err := Normalize(batchOf(a, b))
	require.NoError(t, err)

	require.Len(t, out.Records, 2)
	assert.Equal(t, map[string]bool{"vaccine_Sputnik_V": false}, out.Records[1].Manufacturers)
	assert.Nil(t, out.Records[1].Vaccines)
}

func TestNormalize_DropsDuplicatesKeepingFirst(t *testing.T) {
	a := row("ALA", "2021-01-01", "100", "50", "20")
	a[model.ColVaccines] = "first"
	b := row("ALA", "2021-01-01", "999", "50", "20")
	b[model.ColVaccines] = "second"
	c := row("ALA", "2021-01-02", "200", "150", "70")

	out, err := Normalize(batchOf(a, b, c))
	require.NoError(t, err)

	require.Len(t, out.Records, 2)
	assert.Equal(t, 1, out.Records[0].Row)
	assert.Equal(t, 100.0, *out.Records[0].TotalVaccinations)
	assert.Equal(t, 1, out.Report.DroppedDuplicates)

	// manufacturers are collected before deduplication
	assert.Contains(t, out.Records[0].Manufacturers, "vaccine_second")
	assert.False(t, out.Records[0].Manufacturers["vaccine_second"])
}

func TestNormalize_DuplicateTieBreakFollowsInputOrderAfterSort(t *testing.T) {
	out, err := Normalize(batchOf(
		row("BRA", "2021-01-01", "1", "", ""),
		row("ALA", "2021-01-05", "2", "", ""),
		row("ALA", "2021-01-05", "3", "", ""),
	))
	require.NoError(t, err)

	require.Len(t, out.Records, 2)
	assert.Equal(t, "ALA", out.Records[0].ISOCode)
	assert.Equal(t, 2.0, *out.Records[0].TotalVaccinations)
	assert.Equal(t, "BRA", out.Records[1].ISOCode)
}

func TestNormalize_DropsEmptySignalRows(t *testing.T) {
	out, err := Normalize(batchOf(
		row("ALA", "2021-01-01", "", "", ""),
		row("ALA", "2021-01-02", "", "", "5"),
	))
	require.NoError(t, err)

	require.Len(t, out.Records, 1)
	assert.Equal(t, "2021-01-02", out.Records[0].DateString())
	assert.Equal(t, 1, out.Report.DroppedEmpty)
}

func TestNormalize_EmptyDroppedBeforeDedup(t *testing.T) {
	// the empty row sorts first but must not shadow the later row
	out, err := Normalize(batchOf(
		row("ALA", "2021-01-01", "", "", ""),
		row("ALA", "2021-01-01", "10", "", ""),
	))
	require.NoError(t, err)

	require.Len(t, out.Records, 1)
	assert.Equal(t, 2, out.Records[0].Row)
	assert.Zero(t, out.Report.DroppedDuplicates)
}

func TestNormalize_UnparsableDatesSortFirstAndAreKept(t *testing.T) {
	out, err := Normalize(batchOf(
		row("ALA", "2021-01-02", "2", "", ""),
		row("ALA", "not a date", "1", "", ""),
		row("ALB", "", "3", "", ""),
	))
	require.NoError(t, err)

	require.Len(t, out.Records, 3)
	assert.Nil(t, out.Records[0].Date)
	assert.Equal(t, "ALA", out.Records[0].ISOCode)
	assert.Equal(t, "2021-01-02", out.Records[1].DateString())
	assert.Nil(t, out.Records[2].Date)
	assert.Equal(t, 2, out.Report.UnparsableDates)

	var ops []string
	for _, op := range out.Operations {
		ops = append(ops, op.CleaningOperation+" "+op.RowIdentifier)
	}
	assert.Contains(t, ops, "date_parse_failed ALA@unknown#2")
}

func TestNormalize_UnknownDatesShareAKey(t *testing.T) {
	out, err := Normalize(batchOf(
		row("ALA", "garbage", "1", "", ""),
		row("ALA", "also garbage", "2", "", ""),
	))
	require.NoError(t, err)

	require.Len(t, out.Records, 1)
	assert.Equal(t, 1.0, *out.Records[0].TotalVaccinations)
}

func TestNormalize_DateFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "iso date", input: "2021-03-04", want: "2021-03-04"},
		{name: "rfc3339", input: "2021-03-04T22:10:00Z", want: "2021-03-04"},
		{name: "timestamp", input: "2021-03-04 01:02:03", want: "2021-03-04"},
		{name: "slashes", input: "2021/03/04", want: "2021-03-04"},
		{name: "us format", input: "03/04/2021", want: "2021-03-04"},
		{name: "padded", input: "  2021-03-04 ", want: "2021-03-04"},
		{name: "impossible day", input: "2021-02-30", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(batchOf(row("ALA", tt.input, "1", "", "")))
			require.NoError(t, err)
			require.Len(t, out.Records, 1)
			assert.Equal(t, tt.want, out.Records[0].DateString())
		})
	}
}

func TestNormalize_Ratio(t *testing.T) {
	tests := []struct {
		name         string
		total, fully string
		want         *float64
	}{
		{name: "both present", total: "200", fully: "50", want: ptr(0.25)},
		{name: "zero denominator", total: "0", fully: "5", want: nil},
		{name: "null total", total: "", fully: "5", want: nil},
		{name: "null fully", total: "10", fully: "", want: nil},
		{name: "unparsable total", total: "n/a", fully: "5", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(batchOf(row("ALA", "2021-01-01", tt.total, "1", tt.fully)))
			require.NoError(t, err)
			require.Len(t, out.Records, 1)
			if tt.want == nil {
				assert.Nil(t, out.Records[0].FullyVaccinatedRatio)
				return
			}
			require.NotNil(t, out.Records[0].FullyVaccinatedRatio)
			assert.InDelta(t, *tt.want, *out.Records[0].FullyVaccinatedRatio, 1e-12)
		})
	}
}

func TestNormalize_UnparsableNumberIsNull(t *testing.T) {
	out, err := Normalize(batchOf(row("ALA", "2021-01-01", "lots", "5", "")))
	require.NoError(t, err)

	require.Len(t, out.Records, 1)
	assert.Nil(t, out.Records[0].TotalVaccinations)
	assert.Equal(t, 1, out.Report.UnparsableNumbers)
}

func TestNormalize_StructuralErrors(t *testing.T) {
	t.Run("nil batch", func(t *testing.T) {
		_, err := Normalize(nil)
		assert.ErrorIs(t, err, ErrBadSchema)
	})

	t.Run("missing iso_code", func(t *testing.T) {
		_, err := Normalize(&model.RawBatch{
			Columns: []string{model.ColDate, model.ColTotalVaccinations},
			Records: []model.RawRecord{{model.ColDate: "2021-01-01", model.ColTotalVaccinations: "1"}},
		})
		require.Error(t, err)

		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, []string{model.ColISOCode}, schemaErr.Missing)
		assert.ErrorIs(t, err, ErrBadSchema)
	})

	t.Run("headerless batch is inferred from records", func(t *testing.T) {
		out, err := Normalize(&model.RawBatch{
			Records: []model.RawRecord{row("ALA", "2021-01-01", "1", "", "")},
		})
		require.NoError(t, err)
		assert.Len(t, out.Records, 1)
	})

	t.Run("header only is fine", func(t *testing.T) {
		out, err := Normalize(batchOf())
		require.NoError(t, err)
		assert.Empty(t, out.Records)
	})
}

func TestNormalize_SlugCollisionsGetSuffix(t *testing.T) {
	a := row("ALA", "2021-01-01", "1", "", "")
	a[model.ColVaccines] = "Sinopharm/Beijing, Sinopharm Beijing"
	b := row("ALA", "2021-01-02", "1", "", "")
	b[model.ColVaccines] = "Sinopharm_Beijing, Sinopharm Beijing"

	out, err := Normalize(batchOf(a, b))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"vaccine_Sinopharm_Beijing",
		"vaccine_Sinopharm_Beijing_2",
		"vaccine_Sinopharm_Beijing_3",
	}, out.ManufacturerColumns())

	assert.Equal(t, map[string]bool{
		"vaccine_Sinopharm_Beijing":   true,
		"vaccine_Sinopharm_Beijing_2": true,
		"vaccine_Sinopharm_Beijing_3": false,
	}, out.Records[0].Manufacturers)
	assert.Equal(t, map[string]bool{
		"vaccine_Sinopharm_Beijing":   false,
		"vaccine_Sinopharm_Beijing_2": true,
		"vaccine_Sinopharm_Beijing_3": true,
	}, out.Records[1].Manufacturers)
}

func TestNormalize_CaseOnlyCollisionsGetSuffix(t *testing.T) {
	a := row("ALA", "2021-01-01", "1", "", "")
	a[model.ColVaccines] = "Moderna"
	b := row("ALA", "2021-01-02", "1", "", "")
	b[model.ColVaccines] = "moderna, MODERNA"

	out, err := Normalize(batchOf(a, b))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"vaccine_Moderna",
		"vaccine_moderna_2",
		"vaccine_MODERNA_3",
	}, out.ManufacturerColumns())
	assert.True(t, out.Records[0].Manufacturers["vaccine_Moderna"])
	assert.False(t, out.Records[0].Manufacturers["vaccine_moderna_2"])
	assert.True(t, out.Records[1].Manufacturers["vaccine_moderna_2"])
	assert.True(t, out.Records[1].Manufacturers["vaccine_MODERNA_3"])
}

func TestNormalize_Invariants(t *testing.T) {
	vaccines := []string{"", "Moderna", "Pfizer/BioNTech, Moderna", "Sputnik V", "Moderna, Oxford/AstraZeneca"}
	isos := []string{"USA", "ALA", "OWID_WRL", "BRA"}

	var records []model.RawRecord
	for i := 0; i < 120; i++ {
		date := fmt.Sprintf("2021-02-%02d", i%9+1)
		if i%17 == 0 {
			date = "bad"
		}
		total, people, fully := strconv.Itoa(i*10), "", strconv.Itoa(i)
		if i%5 == 0 {
			total, fully = "", ""
		}
		if i%7 == 0 {
			people = strconv.Itoa(i * 3)
		}
		r := row(isos[i%len(isos)], date, total, people, fully)
		r[model.ColVaccines] = vaccines[i%len(vaccines)]
		records = append(records, r)
	}

	input := batchOf(records...)
	out, err := Normalize(input)
	require.NoError(t, err)
	require.NotEmpty(t, out.Records)

	seen := make(map[string]bool)
	for i := range out.Records {
		rec := &out.Records[i]

		if i > 0 {
			assert.False(t, less(rec, &out.Records[i-1]), "records out of order at %d", i)
		}

		assert.False(t, seen[rec.Key()], "duplicate key %q", rec.Key())
		seen[rec.Key()] = true

		assert.True(t, rec.HasSignal())

		tokens := make(map[string]bool)
		for _, tok := range SplitVaccines(rec.Vaccines) {
			tokens[tok] = true
		}
		require.Len(t, rec.Manufacturers, len(out.Manufacturers))
		for _, m := range out.Manufacturers {
			assert.Equal(t, tokens[m.Name], rec.Manufacturers[m.Column])
		}

		if rec.TotalVaccinations != nil && rec.PeopleFullyVaccinated != nil && *rec.TotalVaccinations != 0 {
			require.NotNil(t, rec.FullyVaccinatedRatio)
			assert.Equal(t, *rec.PeopleFullyVaccinated / *rec.TotalVaccinations, *rec.FullyVaccinatedRatio)
		} else {
			assert.Nil(t, rec.FullyVaccinatedRatio)
		}
	}

	// every row with a signal has its key in the output
	for _, raw := range input.Records {
		rec, _ := parseRecord(raw, 0)
		if rec.HasSignal() {
			assert.True(t, seen[rec.Key()], "missing key %q", rec.Key())
		}
	}

	assert.Equal(t, out.Report.InputRows,
		out.Report.OutputRows+out.Report.DroppedEmpty+out.Report.DroppedDuplicates)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	input := batchOf(
		row("ALA", "2021-01-02", "2", "", ""),
		row("ALA", "2021-01-01", "1", "", ""),
	)
	_, err := Normalize(input)
	require.NoError(t, err)

	assert.Equal(t, "2021-01-02", input.Records[0][model.ColDate])
	assert.Equal(t, "2021-01-01", input.Records[1][model.ColDate])
}

func ptr(f float64) *float64 {
	return &f
}
