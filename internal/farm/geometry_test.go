package farm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPolygon(rings ...[]interface{}) map[string]interface{} {
	coords := make([]interface{}, 0, len(rings))
	for _, ring := range rings {
		coords = append(coords, ring)
	}
	return map[string]interface{}{"type": "Polygon", "coordinates": coords}
}

func vertex(components ...float64) []interface{} {
	out := make([]interface{}, len(components))
	for i, c := range components {
		out[i] = c
	}
	return out
}

func TestNormalizeGeometryStripsZ(t *testing.T) {
	geom := rawPolygon([]interface{}{
		vertex(-75.5, 6.2, 1450.0),
		vertex(-75.4, 6.2, 1451.5),
		vertex(-75.4, 6.3, 1449.0),
		vertex(-75.5, 6.2, 1450.0),
	})

	polygon, dropped, err := NormalizeGeometry(geom)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, polygon.Coordinates, 1)
	for _, v := range polygon.Coordinates[0] {
		assert.Len(t, v, 2)
	}
	assert.Equal(t, [2]float64{-75.5, 6.2}, polygon.Coordinates[0][0])
}

func TestNormalizeGeometryIdempotent(t *testing.T) {
	geom := rawPolygon([]interface{}{
		vertex(-75.5, 6.2), vertex(-75.4, 6.2), vertex(-75.4, 6.3), vertex(-75.5, 6.2),
	})

	once, _, err := NormalizeGeometry(geom)
	require.NoError(t, err)

	twice, _, err := NormalizeGeometry(once.GeoJSON())
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeGeometryMultiPolygonTakesFirst(t *testing.T) {
	first := []interface{}{[]interface{}{
		vertex(-75.5, 6.2), vertex(-75.4, 6.2), vertex(-75.4, 6.3), vertex(-75.5, 6.2),
	}}
	second := []interface{}{[]interface{}{
		vertex(-74.0, 4.6), vertex(-73.9, 4.6), vertex(-73.9, 4.7), vertex(-74.0, 4.6),
	}}
	geom := map[string]interface{}{
		"type":        "MultiPolygon",
		"coordinates": []interface{}{first, second},
	}

	polygon, dropped, err := NormalizeGeometry(geom)
	require.NoError(t, err)

	assert.Equal(t, 1, dropped)
	assert.Equal(t, "Polygon", polygon.Type)
	require.Len(t, polygon.Coordinates, 1)
	// The second constituent is discarded, not merged.
	assert.Equal(t, [2]float64{-75.5, 6.2}, polygon.Coordinates[0][0])
	for _, ring := range polygon.Coordinates {
		for _, v := range ring {
			assert.NotEqual(t, [2]float64{-74.0, 4.6}, v)
		}
	}
}

func TestNormalizeGeometryRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		geom interface{}
	}{
		{"not a mapping", "POLYGON((0 0))"},
		{"missing type", map[string]interface{}{"coordinates": []interface{}{}}},
		{"missing coordinates", map[string]interface{}{"type": "Polygon"}},
		{"empty multipolygon", map[string]interface{}{"type": "MultiPolygon", "coordinates": []interface{}{}}},
		{"point geometry", map[string]interface{}{"type": "Point", "coordinates": vertex(1, 2)}},
		{"single component vertex", rawPolygon([]interface{}{vertex(1)})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NormalizeGeometry(tc.geom)
			require.Error(t, err)
			var invalid *InvalidGeometryError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}
