package cleaner

import (
	"strconv"
	"strings"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// vaccineSeparator splits the free-text vaccines field
const vaccineSeparator = ", "

var slugReplacer = strings.NewReplacer("/", "_", " ", "_")

// ManufacturerColumn returns the boolean column name for a manufacturer
func ManufacturerColumn(name string) string {
	return model.ManufacturerPrefix + slugReplacer.Replace(name)
}

// SplitVaccines returns the manufacturer tokens of a vaccines value
func SplitVaccines(vaccines *string) []string {
	if vaccines == nil {
		return nil
	}
	parts := strings.Split(*vaccines, vaccineSeparator)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// collectManufacturers finds every distinct manufacturer in first-seen order.
// Names whose slugs collide, ignoring case, get a numeric suffix so no
// column is overwritten in stores with case-insensitive identifiers.
func collectManufacturers(records []model.CleanedRecord) []model.Manufacturer {
	var manufacturers []model.Manufacturer
	seen := make(map[string]bool)
	taken := make(map[string]bool)

	for i := range records {
		for _, name := range SplitVaccines(records[i].Vaccines) {
			if seen[name] {
				continue
			}
			seen[name] = true

			column := uniqueColumn(ManufacturerColumn(name), taken)
			taken[strings.ToLower(column)] = true
			manufacturers = append(manufacturers, model.Manufacturer{Name: name, Column: column})
		}
	}

	return manufacturers
}

// uniqueColumn appends _2, _3, ... until the column is unused.
// taken is keyed by lower-cased column name.
func uniqueColumn(base string, taken map[string]bool) string {
	if !taken[strings.ToLower(base)] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if !taken[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

// expandManufacturers sets every manufacturer column on every record
func expandManufacturers(records []model.CleanedRecord, manufacturers []model.Manufacturer) {
	for i := range records {
		tokens := make(map[string]bool)
		for _, name := range SplitVaccines(records[i].Vaccines) {
			tokens[name] = true
		}

		flags := make(map[string]bool, len(manufacturers))
		for _, m := range manufacturers {
			flags[m.Column] = tokens[m.Name]
		}
		records[i].Manufacturers = flags
	}
}
