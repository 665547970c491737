package model

import (
	"strings"
	"time"
)

// Column names of the vaccinations dataset
const (
	ColISOCode                         = "iso_code"
	ColCountry                         = "country"
	ColLocation                        = "location"
	ColDate                            = "date"
	ColTotalVaccinations               = "total_vaccinations"
	ColPeopleVaccinated                = "people_vaccinated"
	ColPeopleFullyVaccinated           = "people_fully_vaccinated"
	ColDailyVaccinationsRaw            = "daily_vaccinations_raw"
	ColDailyVaccinations               = "daily_vaccinations"
	ColTotalVaccinationsPerHundred     = "total_vaccinations_per_hundred"
	ColPeopleVaccinatedPerHundred      = "people_vaccinated_per_hundred"
	ColPeopleFullyVaccinatedPerHundred = "people_fully_vaccinated_per_hundred"
	ColDailyVaccinationsPerMillion     = "daily_vaccinations_per_million"
	ColVaccines                        = "vaccines"
	ColSourceName                      = "source_name"
	ColSourceWebsite                   = "source_website"

	// ColFullyVaccinatedRatio is derived during normalization
	ColFullyVaccinatedRatio = "fully_vaccinated_ratio"

	// ManufacturerPrefix prefixes every manufacturer boolean column
	ManufacturerPrefix = "vaccine_"
)

// DateLayout is the canonical text form of a calendar date
const DateLayout = "2006-01-02"

// RawRecord is one as-ingested row keyed by column name.
// An absent key or an empty string means null.
type RawRecord map[string]string

// Get returns the trimmed value for a column and whether it is non-null
func (r RawRecord) Get(col string) (string, bool) {
	v, ok := r[col]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// RawBatch is a whole input table held in memory
type RawBatch struct {
	Columns []string    // Header, in file order
	Records []RawRecord // Rows, in input order
}

// HasColumn reports whether the batch carries col. Without a header the
// records themselves are inspected.
func (b *RawBatch) HasColumn(col string) bool {
	for _, c := range b.Columns {
		if c == col {
			return true
		}
	}
	if len(b.Columns) > 0 {
		return false
	}
	for _, r := range b.Records {
		if _, ok := r[col]; ok {
			return true
		}
	}
	return false
}

// Manufacturer is a vaccine maker observed in a batch and the boolean column it maps to
type Manufacturer struct {
	Name   string // As written in the vaccines field, e.g. "Pfizer/BioNTech"
	Column string // e.g. "vaccine_Pfizer_BioNTech"
}

// CleanedRecord is a normalized vaccination observation
type CleanedRecord struct {
	Row int // 1-based position in the raw input

	ISOCode  string
	Country  string
	Location string
	Date     *time.Time // nil when the raw date could not be parsed

	TotalVaccinations     *float64
	PeopleVaccinated      *float64
	PeopleFullyVaccinated *float64
	DailyVaccinationsRaw  *float64
	DailyVaccinations     *float64

	TotalVaccinationsPerHundred     *float64
	PeopleVaccinatedPerHundred      *float64
	PeopleFullyVaccinatedPerHundred *float64
	DailyVaccinationsPerMillion     *float64

	Vaccines      *string
	SourceName    *string
	SourceWebsite *string

	// Manufacturers holds one entry per batch manufacturer column
	Manufacturers map[string]bool

	FullyVaccinatedRatio *float64
}

// DateString returns the canonical date text, or "" for an unknown date
func (r *CleanedRecord) DateString() string {
	if r.Date == nil {
		return ""
	}
	return r.Date.Format(DateLayout)
}

// Key identifies a record for deduplication: iso_code plus date
func (r *CleanedRecord) Key() string {
	if r.Date == nil {
		return r.ISOCode + "\x00"
	}
	return r.ISOCode + "\x00" + r.DateString()
}

// HasSignal reports whether any of the three vaccination counts is present
func (r *CleanedRecord) HasSignal() bool {
	return r.TotalVaccinations != nil || r.PeopleVaccinated != nil || r.PeopleFullyVaccinated != nil
}

// CleaningReport summarizes what normalization did to a batch
type CleaningReport struct {
	InputRows         int `json:"input_rows"`
	UnparsableDates   int `json:"unparsable_dates"`
	UnparsableNumbers int `json:"unparsable_numbers"`
	DroppedEmpty      int `json:"dropped_empty"`
	DroppedDuplicates int `json:"dropped_duplicates"`
	OutputRows        int `json:"output_rows"`
}

// CleanedBatch is the output of normalization
type CleanedBatch struct {
	Manufacturers []Manufacturer
	Records       []CleanedRecord
	Report        CleaningReport
	Operations    []CleaningOperation
}

// ManufacturerColumns returns the manufacturer column names in batch order
func (b *CleanedBatch) ManufacturerColumns() []string {
	cols := make([]string, len(b.Manufacturers))
	for i, m := range b.Manufacturers {
		cols[i] = m.Column
	}
	return cols
}
