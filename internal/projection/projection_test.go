package projection_test

import (
	"math"
	"testing"

	"github.com/tilercore/pipeline/internal/projection"
)

func TestNamedResolvesKnownProjections(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"EPSG:4326", "EPSG:4326"},
		{"", "EPSG:4326"},
		{"EPSG:3857", "EPSG:3857"},
	}
	for _, c := range cases {
		p, err := projection.Named(c.name)
		if err != nil {
			t.Fatalf("Named(%q): %v", c.name, err)
		}
		if p.Name() != c.want {
			t.Fatalf("Named(%q).Name() = %q, want %q", c.name, p.Name(), c.want)
		}
	}
}

func TestNamedRejectsUnknown(t *testing.T) {
	if _, err := projection.Named("EPSG:2154"); err == nil {
		t.Fatal("expected error for unsupported projection")
	}
}

func TestEPSG4326RoundTrip(t *testing.T) {
	p := projection.EPSG4326{}
	cases := []struct{ lon, lat float64 }{
		{0, 0},
		{-122.4194, 37.7749},
		{139.6917, 35.6895},
		{-179.9, -85},
	}
	for _, c := range cases {
		x, y := p.Project(c.lon, c.lat, 32)
		gotLon, gotLat := p.UnProject(x, y, 32)
		if math.Abs(gotLon-c.lon) > 1e-3 {
			t.Fatalf("lon round trip %v: got %v", c.lon, gotLon)
		}
		if math.Abs(gotLat-c.lat) > 1e-3 {
			t.Fatalf("lat round trip %v: got %v", c.lat, gotLat)
		}
	}
}

func TestEPSG4326ClampsOutOfRangeLatitude(t *testing.T) {
	p := projection.EPSG4326{}
	_, yLow := p.Project(0, -95, 32)
	_, yClamped := p.Project(0, -89.9, 32)
	if yLow != yClamped {
		t.Fatalf("expected latitude below -89.9 to clamp: got %d want %d", yLow, yClamped)
	}
}

func TestEPSG3857ZoomShift(t *testing.T) {
	p := projection.EPSG3857{}
	x0, y0 := p.Project(-13627363.1, 4547731.6, 0)
	x14, y14 := p.Project(-13627363.1, 4547731.6, 14)
	if x0 == x14 || y0 == y14 {
		t.Fatalf("expected projected coordinates to change between zoom 0 and 14")
	}
	gx, gy := p.UnProject(x14, y14, 14)
	// Zoom 14 drops the low 18 bits of the full plane, so the round trip
	// lands somewhere in the same zoom-14 tile, 2*pi*6378137/2^14 (about
	// 2446) metres wide.
	tile := 2 * math.Pi * 6378137.0 / (1 << 14)
	if math.Abs(gx-(-13627363.1)) > tile || math.Abs(gy-4547731.6) > tile {
		t.Fatalf("round trip at zoom 14 too far off: got (%v,%v)", gx, gy)
	}
}
