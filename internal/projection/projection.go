// Package projection is the default in-tree implementation of the
// Projection collaborator SPEC_FULL.md §6 declares: the core only consumes
// the Project/UnProject interface, but a working EPSG:3857/EPSG:4326 pair
// is shipped so the module is runnable end-to-end. Ported from the source
// project's projection.go.
package projection

import (
	"fmt"
	"math"
)

// Projection converts between geographic (or projected) coordinates and
// the integer tile-plane coordinates the core's FeatureSerializer expects,
// at a given zoom (32 for full-precision ingest).
type Projection interface {
	Project(ix, iy float64, zoom int) (ox, oy int64)
	UnProject(ix, iy int64, zoom int) (ox, oy float64)
	Name() string
}

// Named resolves a projection by its EPSG identifier.
func Named(name string) (Projection, error) {
	switch name {
	case "EPSG:4326", "":
		return EPSG4326{}, nil
	case "EPSG:3857":
		return EPSG3857{}, nil
	default:
		return nil, fmt.Errorf("projection: unsupported %q", name)
	}
}

// EPSG4326 takes WGS84 lon/lat in degrees and projects them onto the
// spherical (Web) Mercator tile plane.
type EPSG4326 struct{}

func (EPSG4326) Name() string { return "EPSG:4326" }

// Project maps (lon, lat) in degrees to tile-plane coordinates at zoom.
func (EPSG4326) Project(lon, lat float64, zoom int) (x, y int64) {
	badLon := false
	if math.IsInf(lon, 0) || math.IsNaN(lon) {
		lon = 720
		badLon = true
	}
	if math.IsInf(lat, 0) || math.IsNaN(lat) {
		lat = 89.9
	}
	if lat < -89.9 {
		lat = -89.9
	}
	if lat > 89.9 {
		lat = 89.9
	}
	if lon < -360 && !badLon {
		lon = -360
	}
	if lon > 360 && !badLon {
		lon = 360
	}

	latRad := lat * math.Pi / 180
	n := int64(1) << uint(zoom)

	x = int64(float64(n) * ((lon + 180.0) / 360.0))
	y = int64(float64(n) * (1.0 - (math.Log(math.Tan(latRad)+1.0/math.Cos(latRad)) / math.Pi)) / 2.0)
	return x, y
}

// UnProject inverts Project.
func (EPSG4326) UnProject(x, y int64, zoom int) (lon, lat float64) {
	n := int64(1) << uint(zoom)
	lon = float64(360.0*x)/float64(n) - 180.0
	lat = math.Atan(math.Sinh(math.Pi*(1-2.0*float64(y)/float64(n)))) * 180.0 / math.Pi
	return lon, lat
}

// EPSG3857 is Web Mercator.
type EPSG3857 struct{}

func (EPSG3857) Name() string { return "EPSG:3857" }

func (EPSG3857) Project(ix, iy float64, zoom int) (ox, oy int64) {
	if math.IsInf(ix, 0) || math.IsNaN(ix) {
		ix = 40000000.0
	}
	if math.IsInf(iy, 0) || math.IsNaN(iy) {
		iy = 40000000.0
	}

	ox = int64(ix*(1<<31)/6378137.0/math.Pi + (1 << 31))
	oy = int64(((1 << 32) - 1) - (iy*(1<<31)/6378137.0/math.Pi + (1 << 31)))

	if zoom != 0 {
		ox >>= uint(32 - zoom)
		oy >>= uint(32 - zoom)
	}
	return ox, oy
}

func (EPSG3857) UnProject(ix, iy int64, zoom int) (ox, oy float64) {
	if zoom != 0 {
		ix <<= uint(32 - zoom)
		iy <<= uint(32 - zoom)
	}
	ox = float64(ix-(1<<31)) * math.Pi * 6378137.0 / (1 << 31)
	oy = float64((1<<32)-1-iy-(1<<31)) * math.Pi * 6378137.0 / (1 << 31)
	return ox, oy
}
