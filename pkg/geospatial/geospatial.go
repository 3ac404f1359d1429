package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Area returns the geodesic area in square meters for a lon/lat geometry.
func Area(geometry orb.Geometry) float64 {
	return geo.Area(geometry)
}

// PlanarArea returns the planar area for already-projected geometries.
func PlanarArea(geometry orb.Geometry) float64 {
	return planar.Area(geometry)
}

// Centroid returns the centroid of a geometry.
func Centroid(geometry orb.Geometry) orb.Point {
	point, _ := planar.CentroidArea(geometry)
	return point
}

// Bound returns the bounding box of a geometry.
func Bound(geometry orb.Geometry) orb.Bound {
	return geometry.Bound()
}

// ToHectares converts square meters to hectares.
func ToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}
