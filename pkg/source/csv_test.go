package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/vaccine-ingress/pkg/cleaner"
	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

const sampleCSV = `country,iso_code,date,total_vaccinations,people_vaccinated,people_fully_vaccinated,daily_vaccinations_raw,daily_vaccinations,total_vaccinations_per_hundred,people_vaccinated_per_hundred,people_fully_vaccinated_per_hundred,daily_vaccinations_per_million,vaccines,source_name,source_website
Albania,ALB,2021-01-11,,,,,,,,,,Pfizer/BioNTech,Ministry of Health,http://example.org/alb
Albania,ALB,2021-01-10,0.0,0.0,,,,0.0,0.0,,,Pfizer/BioNTech,Ministry of Health,http://example.org/alb
Albania,ALB,2021-01-12,128.0,128.0,,,64.0,0.0,0.0,,22.0,Pfizer/BioNTech,Ministry of Health,http://example.org/alb
Algeria,DZA,2021-01-29,0.0,,,,,0.0,,,,Sputnik V,Ministry of Health,http://example.org/dza
Algeria,DZA,2021-01-30,30.0,,,30.0,30.0,0.0,,,1.0,"Oxford/AstraZeneca, Sputnik V",Ministry of Health,http://example.org/dza
Algeria,DZA,2021-01-30,30.0,,,30.0,30.0,0.0,,,1.0,"Oxford/AstraZeneca, Sputnik V",Ministry of Health,http://example.org/dza
Andorra,AND,not-a-date,576.0,576.0,,,,0.75,0.75,,,Pfizer/BioNTech,Government of Andorra,http://example.org/and
`

func TestReadCSV(t *testing.T) {
	batch, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Len(t, batch.Columns, 15)
	require.Len(t, batch.Records, 7)
	assert.Equal(t, "ALB", batch.Records[0][model.ColISOCode])
	assert.Equal(t, "Oxford/AstraZeneca, Sputnik V", batch.Records[4][model.ColVaccines])

	_, ok := batch.Records[0].Get(model.ColTotalVaccinations)
	assert.False(t, ok)
}

func TestReadCSV_StripsBOM(t *testing.T) {
	batch, err := ReadCSV(strings.NewReader("\ufeffiso_code,date\nALA,2021-01-01\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"iso_code", "date"}, batch.Columns)
	assert.True(t, batch.HasColumn(model.ColISOCode))
}

func TestReadCSV_NotTabular(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "ragged rows", input: "iso_code,date\nALA,2021-01-01,extra\n"},
		{name: "bad quoting", input: "iso_code,date\n\"ALA,2021-01-01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrNotTabular)
		})
	}
}

func TestCSVFile_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaccinations.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	src := CSVFile{Path: path}
	assert.Equal(t, "csv:"+path, src.Name())

	batch, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Records, 7)

	_, err = CSVFile{Path: filepath.Join(t.TempDir(), "missing.csv")}.Read(context.Background())
	assert.Error(t, err)
}

func TestWriteCSV_Header(t *testing.T) {
	batch, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	cleaned, err := cleaner.Normalize(batch)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, cleaned))

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.True(t, strings.HasSuffix(header,
		"vaccine_Pfizer_BioNTech,vaccine_Sputnik_V,vaccine_Oxford_AstraZeneca,fully_vaccinated_ratio"))
	assert.True(t, strings.HasPrefix(header, "iso_code,country,location,date,"))
}

func TestNormalize_IsIdempotentThroughCSV(t *testing.T) {
	batch, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	first, err := cleaner.Normalize(batch)
	require.NoError(t, err)
	require.Len(t, first.Records, 5)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, first))

	reread, err := ReadCSV(&buf)
	require.NoError(t, err)

	second, err := cleaner.Normalize(reread)
	require.NoError(t, err)

	assert.Equal(t, first.Manufacturers, second.Manufacturers)
	assert.Zero(t, second.Report.DroppedEmpty)
	assert.Zero(t, second.Report.DroppedDuplicates)
	require.Len(t, second.Records, len(first.Records))

	for i := range first.Records {
		a, b := first.Records[i], second.Records[i]
		a.Row, b.Row = 0, 0
		assert.Equal(t, a, b, "record %d differs", i)
	}
}
