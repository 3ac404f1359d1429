package carbon

import "errors"

// DefaultDensityKey is the mandatory fallback row of every density table.
const DefaultDensityKey = "default"

// DensityLookup resolves a species name to wood density in g/cm³.
// Implementations decide the matching strategy; the estimation formulas
// never do.
type DensityLookup interface {
	Lookup(species string) float64
}

// DensityTable is an immutable exact-match lookup with a single default
// fallback. A genus key such as "Eucalyptus" is a distinct row, not a
// prefix match.
type DensityTable struct {
	densities map[string]float64
}

// NewDensityTable builds a table from species → g/cm³ entries. The table
// must carry a "default" row.
func NewDensityTable(entries map[string]float64) (*DensityTable, error) {
	if _, ok := entries[DefaultDensityKey]; !ok {
		return nil, errors.New("density table requires a 'default' entry")
	}
	densities := make(map[string]float64, len(entries))
	for species, density := range entries {
		densities[species] = density
	}
	return &DensityTable{densities: densities}, nil
}

// Lookup returns the density for an exact species match, falling back to
// the default row.
func (t *DensityTable) Lookup(species string) float64 {
	if density, ok := t.densities[species]; ok {
		return density
	}
	return t.densities[DefaultDensityKey]
}

// DefaultDensityTable returns the built-in wood density database (g/cm³).
func DefaultDensityTable() *DensityTable {
	table, _ := NewDensityTable(map[string]float64{
		"Pinus caribaea":        0.51,
		"Pinus patula":          0.45,
		"Eucalyptus":            0.65,
		"Eucalyptus grandis":    0.55,
		"Acacia":                0.58,
		"Acacia mangium":        0.52,
		"Coffea arabica":        0.55,
		"Coffea":                0.55,
		"Inga":                  0.52,
		"Cordia alliodora":      0.44,
		"Cedrela odorata":       0.42,
		"Swietenia macrophylla": 0.54,
		"Tectona grandis":       0.55,
		DefaultDensityKey:       0.60,
	})
	return table
}
