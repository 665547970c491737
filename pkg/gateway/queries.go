package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// VaccinationRow is one persisted row of the fixed columns. NULL reads as nil.
type VaccinationRow struct {
	ISOCode  *string `db:"iso_code" json:"iso_code"`
	Country  *string `db:"country" json:"country"`
	Location *string `db:"location" json:"location"`
	Date     *string `db:"date" json:"date"`

	TotalVaccinations     *int64 `db:"total_vaccinations" json:"total_vaccinations"`
	PeopleVaccinated      *int64 `db:"people_vaccinated" json:"people_vaccinated"`
	PeopleFullyVaccinated *int64 `db:"people_fully_vaccinated" json:"people_fully_vaccinated"`
	DailyVaccinationsRaw  *int64 `db:"daily_vaccinations_raw" json:"daily_vaccinations_raw"`
	DailyVaccinations     *int64 `db:"daily_vaccinations" json:"daily_vaccinations"`

	TotalVaccinationsPerHundred     *float64 `db:"total_vaccinations_per_hundred" json:"total_vaccinations_per_hundred"`
	PeopleVaccinatedPerHundred      *float64 `db:"people_vaccinated_per_hundred" json:"people_vaccinated_per_hundred"`
	PeopleFullyVaccinatedPerHundred *float64 `db:"people_fully_vaccinated_per_hundred" json:"people_fully_vaccinated_per_hundred"`
	DailyVaccinationsPerMillion     *float64 `db:"daily_vaccinations_per_million" json:"daily_vaccinations_per_million"`

	Vaccines      *string `db:"vaccines" json:"vaccines"`
	SourceName    *string `db:"source_name" json:"source_name"`
	SourceWebsite *string `db:"source_website" json:"source_website"`
}

// SourceCount is the number of rows reported by one source
type SourceCount struct {
	SourceName *string `db:"source_name" json:"source_name"`
	Rows       int64   `db:"row_count" json:"rows"`
}

// VaccineCount is the number of rows flagging one manufacturer column
type VaccineCount struct {
	Column string `json:"column"`
	Rows   int64  `json:"rows"`
}

// selectList returns the quoted fixed columns
func (g *Gateway) selectList() string {
	names := g.metadata.ColumnNames()
	for i, n := range names {
		names[i] = pq.QuoteIdentifier(n)
	}
	return strings.Join(names, ", ")
}

// QueryByISO returns the rows of one iso_code with start <= date <= end, ordered by date
func (g *Gateway) QueryByISO(ctx context.Context, isoCode string, startDate, endDate time.Time) ([]VaccinationRow, error) {
	return g.queryRange(ctx, "QueryByISO", model.ColISOCode, isoCode, startDate, endDate)
}

// QueryByCountry returns the rows of one country with start <= date <= end, ordered by date
func (g *Gateway) QueryByCountry(ctx context.Context, country string, startDate, endDate time.Time) ([]VaccinationRow, error) {
	return g.queryRange(ctx, "QueryByCountry", model.ColCountry, country, startDate, endDate)
}

func (g *Gateway) queryRange(
	ctx context.Context,
	function string,
	keyColumn string,
	key string,
	startDate time.Time,
	endDate time.Time,
) ([]VaccinationRow, error) {
	date := pq.QuoteIdentifier(model.ColDate)
	query := g.db.Rebind(fmt.Sprintf(`SELECT %s
FROM %s
WHERE %s = ? AND %s BETWEEN ? AND ?
ORDER BY %s`,
		g.selectList(), pq.QuoteIdentifier(g.metadata.Table),
		pq.QuoteIdentifier(keyColumn), date, date))

	rows := []VaccinationRow{}
	start := time.Now()
	err := g.db.SelectContext(ctx, &rows, query,
		key, startDate.Format(model.DateLayout), endDate.Format(model.DateLayout))
	g.record(function, query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by %s: %w", g.metadata.Table, keyColumn, err)
	}
	return rows, nil
}

// CountCountriesUsingVaccine counts distinct countries whose vaccines field contains name
func (g *Gateway) CountCountriesUsingVaccine(ctx context.Context, name string) (int64, error) {
	query := g.db.Rebind(fmt.Sprintf(`SELECT COUNT(DISTINCT %s)
FROM %s
WHERE %s LIKE ? ESCAPE '\'`,
		pq.QuoteIdentifier(model.ColCountry), pq.QuoteIdentifier(g.metadata.Table),
		pq.QuoteIdentifier(model.ColVaccines)))

	var count int64
	start := time.Now()
	err := g.db.GetContext(ctx, &count, query, "%"+escapeLike(name)+"%")
	g.record("CountCountriesUsingVaccine", query, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count countries using %q: %w", name, err)
	}
	return count, nil
}

// escapeLike makes every character of s match literally in a LIKE pattern
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SourceDistribution returns the row count per source_name, largest first
func (g *Gateway) SourceDistribution(ctx context.Context) ([]SourceCount, error) {
	source := pq.QuoteIdentifier(model.ColSourceName)
	query := fmt.Sprintf(`SELECT %s, COUNT(*) AS row_count
FROM %s
GROUP BY %s
ORDER BY row_count DESC, %s`,
		source, pq.QuoteIdentifier(g.metadata.Table), source, source)

	counts := []SourceCount{}
	start := time.Now()
	err := g.db.SelectContext(ctx, &counts, query)
	g.record("SourceDistribution", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query source distribution: %w", err)
	}
	return counts, nil
}

// VaccineSplit returns the number of rows flagging each persisted manufacturer
// column, largest first. It is empty when no manufacturer column exists.
func (g *Gateway) VaccineSplit(ctx context.Context) ([]VaccineCount, error) {
	columns, err := g.Columns(ctx)
	if err != nil {
		return nil, err
	}

	var manufacturers []string
	for _, c := range columns {
		if model.IsManufacturerColumn(c) {
			manufacturers = append(manufacturers, c)
		}
	}
	if len(manufacturers) == 0 {
		return []VaccineCount{}, nil
	}

	exprs := make([]string, len(manufacturers))
	for i, c := range manufacturers {
		exprs[i] = fmt.Sprintf("COUNT(*) FILTER (WHERE %s)", pq.QuoteIdentifier(c))
	}
	query := fmt.Sprintf("SELECT %s\nFROM %s", strings.Join(exprs, ",\n\t"), pq.QuoteIdentifier(g.metadata.Table))

	totals := make([]int64, len(manufacturers))
	dest := make([]interface{}, len(totals))
	for i := range totals {
		dest[i] = &totals[i]
	}

	start := time.Now()
	err = g.db.QueryRowContext(ctx, query).Scan(dest...)
	g.record("VaccineSplit", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query vaccine split: %w", err)
	}

	split := make([]VaccineCount, len(manufacturers))
	for i, c := range manufacturers {
		split[i] = VaccineCount{Column: c, Rows: totals[i]}
	}
	sort.SliceStable(split, func(i, j int) bool {
		return split[i].Rows > split[j].Rows
	})
	return split, nil
}

// RowCount returns the number of rows in the vaccinations table
func (g *Gateway) RowCount(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(g.metadata.Table))

	var count int64
	start := time.Now()
	err := g.db.GetContext(ctx, &count, query)
	g.record("RowCount", query, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}
