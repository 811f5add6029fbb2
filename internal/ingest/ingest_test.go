package ingest

import (
	"strings"
	"testing"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/projection"
)

func TestCSVParserDetectsColumnsAndSerializesRows(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	csvText := "name,lon,lat,pop\nfoo,-122.4,37.8,100\nbar,-73.9,40.7,200\n"
	p := CSVParser{Proj: projection.EPSG4326{}, LayerName: "points"}

	read, dropped, err := p.Parse(sst, r, cfg, strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if read != 2 || dropped != 0 {
		t.Fatalf("read=%d dropped=%d, want 2,0", read, dropped)
	}
	if r.Index.Pos() != 2*feature.IndexSize {
		t.Fatalf("index file has %d bytes, want %d", r.Index.Pos(), 2*feature.IndexSize)
	}
}

func TestCSVParserDropsRowsWithEmptyGeometry(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	csvText := "name,lon,lat\nfoo,,37.8\nbar,-73.9,40.7\n"
	p := CSVParser{Proj: projection.EPSG4326{}, LayerName: "points"}

	read, dropped, err := p.Parse(sst, r, cfg, strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if read != 2 || dropped != 1 {
		t.Fatalf("read=%d dropped=%d, want 2,1", read, dropped)
	}
}

func TestGeoJSONParserFeatureCollection(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[-122.4,37.8]}},
		{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"LineString","coordinates":[[-122.4,37.8],[-122.3,37.9]]}}
	]}`
	p := GeoJSONParser{Proj: projection.EPSG4326{}, LayerName: "mixed"}

	read, dropped, err := p.Parse(sst, r, cfg, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if read != 2 || dropped != 0 {
		t.Fatalf("read=%d dropped=%d, want 2,0", read, dropped)
	}
}

func TestGeoJSONParserLines(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	doc := `{"type":"Feature","properties":{"k":1},"geometry":{"type":"Point","coordinates":[1,2]}}
{"type":"Feature","properties":{"k":2},"geometry":{"type":"Point","coordinates":[3,4]}}
`
	p := GeoJSONParser{Proj: projection.EPSG4326{}, LayerName: "pts"}
	read, dropped, err := p.Parse(sst, r, cfg, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if read != 2 || dropped != 0 {
		t.Fatalf("read=%d dropped=%d, want 2,0", read, dropped)
	}
}

func TestGeoJSONParserRejectsMissingGeometry(t *testing.T) {
	cfg := config.Default()
	sst := NewSerializationState(cfg)
	r := NewReader(t.TempDir(), 0)
	defer r.Close()

	doc := `{"type":"Feature","properties":{"k":1}}`
	p := GeoJSONParser{Proj: projection.EPSG4326{}, LayerName: "pts"}
	read, dropped, err := p.Parse(sst, r, cfg, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if read != 1 || dropped != 1 {
		t.Fatalf("read=%d dropped=%d, want 1,1", read, dropped)
	}
}

func TestPartitionBoundariesAreNewlineAligned(t *testing.T) {
	src := []byte("aaa\nbbb\nccc\nddd\neee\n")
	bounds := partition(src, 3, '\n')
	if bounds[0] != 0 || bounds[len(bounds)-1] != len(src) {
		t.Fatalf("partition bounds must span the whole input: %v", bounds)
	}
	for i := 1; i < len(bounds)-1; i++ {
		if bounds[i] > 0 && bounds[i] < len(src) && src[bounds[i]-1] != '\n' {
			t.Fatalf("boundary %d (%d) does not fall right after a newline", i, bounds[i])
		}
	}
}

func TestPartitionBoundariesAreMonotone(t *testing.T) {
	src := []byte(strings.Repeat("x", 100))
	bounds := partition(src, 8, '\n')
	for i := 1; i < len(bounds); i++ {
		if bounds[i] < bounds[i-1] {
			t.Fatalf("partition bounds not monotone: %v", bounds)
		}
	}
}
