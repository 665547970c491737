// Package chart turns query results into chart-ready data. Rendering is left
// to whatever consumes the JSON.
package chart

import (
	"fmt"
	"strings"

	"github.com/David-Botos/vaccine-ingress/pkg/gateway"
	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// UnknownSource labels rows without a source_name
const UnknownSource = "Unknown"

// Slice is one wedge of a pie chart
type Slice struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"` // Name with its share, e.g. "Moderna (25.0%)"
	Value   int64   `json:"value"`
	Percent float64 `json:"percent"` // 0-100
}

// Pie is a titled pie chart
type Pie struct {
	Title  string  `json:"title"`
	Total  int64   `json:"total"`
	Slices []Slice `json:"slices"`
}

// Point is one day of a line series. Value is nil when not reported.
type Point struct {
	Date  string `json:"date"`
	Value *int64 `json:"value"`
}

// Series is a titled daily line chart
type Series struct {
	Title  string  `json:"title"`
	XLabel string  `json:"x_label"`
	YLabel string  `json:"y_label"`
	Points []Point `json:"points"`
}

// newPie computes shares, keeping the input order
func newPie(title string, names []string, values []int64) *Pie {
	pie := &Pie{Title: title, Slices: make([]Slice, len(names))}
	for _, v := range values {
		pie.Total += v
	}

	for i, name := range names {
		var percent float64
		if pie.Total > 0 {
			percent = float64(values[i]) / float64(pie.Total) * 100
		}
		pie.Slices[i] = Slice{
			Name:    name,
			Label:   fmt.Sprintf("%s (%.1f%%)", name, percent),
			Value:   values[i],
			Percent: percent,
		}
	}
	return pie
}

// SourceDistribution builds the pie of rows per data source
func SourceDistribution(counts []gateway.SourceCount) *Pie {
	names := make([]string, len(counts))
	values := make([]int64, len(counts))
	for i, c := range counts {
		names[i] = UnknownSource
		if c.SourceName != nil && *c.SourceName != "" {
			names[i] = *c.SourceName
		}
		values[i] = c.Rows
	}
	return newPie("Distribution of Data Sources", names, values)
}

// VaccineSplit builds the pie of rows per manufacturer column
func VaccineSplit(split []gateway.VaccineCount) *Pie {
	names := make([]string, len(split))
	values := make([]int64, len(split))
	for i, s := range split {
		names[i] = ManufacturerLabel(s.Column)
		values[i] = s.Rows
	}
	return newPie("Split of Vaccinations by Vaccine Type", names, values)
}

// ManufacturerLabel turns "vaccine_Pfizer_BioNTech" into "Pfizer BioNTech"
func ManufacturerLabel(column string) string {
	return strings.ReplaceAll(strings.TrimPrefix(column, model.ManufacturerPrefix), "_", " ")
}

// DailyVaccinations builds the daily_vaccinations line of one country.
// Rows must already be ordered by date; rows without a date are skipped.
func DailyVaccinations(country, startDate, endDate string, rows []gateway.VaccinationRow) *Series {
	series := &Series{
		Title:  fmt.Sprintf("Daily Vaccinations in %s from %s to %s", country, startDate, endDate),
		XLabel: "Date",
		YLabel: "Daily Vaccinations",
		Points: make([]Point, 0, len(rows)),
	}
	for _, r := range rows {
		if r.Date == nil {
			continue
		}
		series.Points = append(series.Points, Point{Date: *r.Date, Value: r.DailyVaccinations})
	}
	return series
}
