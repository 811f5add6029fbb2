package main

import (
	"path/filepath"
	"testing"

	"github.com/tilercore/pipeline/internal/ingest"
	"github.com/tilercore/pipeline/internal/logging"
	"github.com/tilercore/pipeline/internal/projection"
)

func TestParserForDispatchesByExtension(t *testing.T) {
	cases := []struct {
		path string
		want any
	}{
		{"points.csv", ingest.CSVParser{}},
		{"shapes.geojson", ingest.GeoJSONParser{}},
		{"shapes.GEOJSON", ingest.GeoJSONParser{}},
	}
	for _, c := range cases {
		p, err := parserFor(c.path, projection.EPSG4326{}, "")
		if err != nil {
			t.Fatalf("parserFor(%s): %v", c.path, err)
		}
		switch p.(type) {
		case ingest.CSVParser:
			if _, ok := c.want.(ingest.CSVParser); !ok {
				t.Fatalf("parserFor(%s) = CSVParser, want %T", c.path, c.want)
			}
		case ingest.GeoJSONParser:
			if _, ok := c.want.(ingest.GeoJSONParser); !ok {
				t.Fatalf("parserFor(%s) = GeoJSONParser, want %T", c.path, c.want)
			}
		default:
			t.Fatalf("parserFor(%s) returned unexpected type %T", c.path, p)
		}
	}
}

func TestParserForUsesBaseFilenameAsDefaultLayer(t *testing.T) {
	p, err := parserFor(filepath.Join("data", "roads.csv"), projection.EPSG4326{}, "")
	if err != nil {
		t.Fatalf("parserFor: %v", err)
	}
	csv, ok := p.(ingest.CSVParser)
	if !ok {
		t.Fatalf("parserFor returned %T, want CSVParser", p)
	}
	if csv.LayerName != "roads" {
		t.Fatalf("LayerName = %q, want %q", csv.LayerName, "roads")
	}
}

func TestParserForRejectsUnknownExtension(t *testing.T) {
	if _, err := parserFor("notes.txt", projection.EPSG4326{}, ""); err == nil {
		t.Fatalf("expected an error for an unrecognized extension")
	}
}

func TestRunReturnsArgsExitCodeWithoutInputFiles(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"--output", filepath.Join(dir, "out.mbtiles")})
	if code != logging.Args {
		t.Fatalf("run() = %v, want Args", code)
	}
}

func TestRunReturnsOpenExitCodeForMissingInput(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"--output", filepath.Join(dir, "out.mbtiles"), filepath.Join(dir, "missing.csv")})
	if code != logging.Open {
		t.Fatalf("run() = %v, want Open", code)
	}
}
