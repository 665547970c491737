package model

import "strings"

// VaccinationsTable is the name of the persisted table
const VaccinationsTable = "vaccinations"

// TableMetadata contains the structure information for a database table
type TableMetadata struct {
	Table   string   // Table name
	Columns []Column // Column definitions
}

// Column represents metadata about a database column
type Column struct {
	Name    string // Column name
	SQLType string // Type used in DDL
}

// VaccinationsMetadata describes the fixed columns of the vaccinations table.
// INTEGER is a 64-bit integer and REAL a double, matching the values in the dataset.
func VaccinationsMetadata() *TableMetadata {
	text := func(n string) Column { return Column{Name: n, SQLType: "TEXT"} }
	integer := func(n string) Column { return Column{Name: n, SQLType: "BIGINT"} }
	double := func(n string) Column { return Column{Name: n, SQLType: "DOUBLE PRECISION"} }

	return &TableMetadata{
		Table: VaccinationsTable,
		Columns: []Column{
			text(ColISOCode),
			text(ColCountry),
			text(ColLocation),
			text(ColDate),
			integer(ColTotalVaccinations),
			integer(ColPeopleVaccinated),
			integer(ColPeopleFullyVaccinated),
			integer(ColDailyVaccinationsRaw),
			integer(ColDailyVaccinations),
			double(ColTotalVaccinationsPerHundred),
			double(ColPeopleVaccinatedPerHundred),
			double(ColPeopleFullyVaccinatedPerHundred),
			double(ColDailyVaccinationsPerMillion),
			text(ColVaccines),
			text(ColSourceName),
			text(ColSourceWebsite),
		},
	}
}

// ColumnNames returns the column names in table order
func (tm *TableMetadata) ColumnNames() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// IsManufacturerColumn reports whether a column name is a manufacturer boolean
func IsManufacturerColumn(name string) bool {
	return strings.HasPrefix(name, ManufacturerPrefix)
}
