package farm

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Polygon is the canonical geometry every analysis consumes: a single
// 2-D polygon whose first ring is the outer boundary and whose remaining
// rings are holes.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// InvalidGeometryError reports input that cannot be normalized into a
// canonical polygon. It is fatal to the single farm and never retried.
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return "invalid geometry: " + e.Reason
}

func invalidGeometry(format string, args ...interface{}) error {
	return &InvalidGeometryError{Reason: fmt.Sprintf(format, args...)}
}

// NormalizeGeometry converts a raw GeoJSON geometry object into the
// canonical polygon form. Z coordinates are dropped and a MultiPolygon is
// reduced to its first constituent polygon. The returned count is the
// number of constituent polygons discarded by that reduction (zero for a
// plain Polygon input).
func NormalizeGeometry(geometry interface{}) (*Polygon, int, error) {
	geom, ok := geometry.(map[string]interface{})
	if !ok {
		return nil, 0, invalidGeometry("expected a GeoJSON object")
	}

	geomType, _ := geom["type"].(string)
	coords, hasCoords := geom["coordinates"]
	if geomType == "" || !hasCoords || coords == nil {
		return nil, 0, invalidGeometry("missing 'type' or 'coordinates'")
	}

	dropped := 0
	switch geomType {
	case "Polygon":
		// Nothing to reduce.
	case "MultiPolygon":
		polys, ok := coords.([]interface{})
		if !ok || len(polys) == 0 {
			return nil, 0, invalidGeometry("MultiPolygon has no polygons")
		}
		if _, ok := polys[0].([]interface{}); !ok {
			return nil, 0, invalidGeometry("MultiPolygon has no polygons")
		}
		dropped = len(polys) - 1
		coords = polys[0]
	default:
		return nil, 0, invalidGeometry("unsupported geometry type %q", geomType)
	}

	rings, err := normalizeRings(coords)
	if err != nil {
		return nil, 0, err
	}

	return &Polygon{Type: "Polygon", Coordinates: rings}, dropped, nil
}

// normalizeRings walks the ring list, stripping every vertex to exactly
// two components. The Z drop is irreversible.
func normalizeRings(coords interface{}) ([][][2]float64, error) {
	rawRings, ok := coords.([]interface{})
	if !ok || len(rawRings) == 0 {
		return nil, invalidGeometry("polygon has no rings")
	}

	rings := make([][][2]float64, 0, len(rawRings))
	for _, rawRing := range rawRings {
		vertices, ok := rawRing.([]interface{})
		if !ok {
			return nil, invalidGeometry("ring is not a coordinate list")
		}
		ring := make([][2]float64, 0, len(vertices))
		for _, rawVertex := range vertices {
			vertex, err := normalizeVertex(rawVertex)
			if err != nil {
				return nil, err
			}
			ring = append(ring, vertex)
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

func normalizeVertex(raw interface{}) ([2]float64, error) {
	components, ok := raw.([]interface{})
	if !ok || len(components) < 2 {
		return [2]float64{}, invalidGeometry("coordinate pair must have at least two components")
	}
	var vertex [2]float64
	for i := 0; i < 2; i++ {
		value, ok := components[i].(float64)
		if !ok {
			return [2]float64{}, invalidGeometry("coordinate component is not numeric")
		}
		vertex[i] = value
	}
	return vertex, nil
}

// Orb converts the canonical polygon into an orb geometry for geodesic
// calculations.
func (p *Polygon) Orb() orb.Polygon {
	poly := make(orb.Polygon, 0, len(p.Coordinates))
	for _, ring := range p.Coordinates {
		r := make(orb.Ring, 0, len(ring))
		for _, vertex := range ring {
			r = append(r, orb.Point{vertex[0], vertex[1]})
		}
		poly = append(poly, r)
	}
	return poly
}

// GeoJSON returns the polygon as a generic GeoJSON mapping, the shape
// remote providers and output documents expect.
func (p *Polygon) GeoJSON() map[string]interface{} {
	coords := make([]interface{}, 0, len(p.Coordinates))
	for _, ring := range p.Coordinates {
		r := make([]interface{}, 0, len(ring))
		for _, vertex := range ring {
			r = append(r, []interface{}{vertex[0], vertex[1]})
		}
		coords = append(coords, r)
	}
	return map[string]interface{}{
		"type":        p.Type,
		"coordinates": coords,
	}
}
