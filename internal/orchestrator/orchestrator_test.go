package orchestrator_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/ingest"
	"github.com/tilercore/pipeline/internal/logging"
	"github.com/tilercore/pipeline/internal/metadata"
	"github.com/tilercore/pipeline/internal/orchestrator"
	"github.com/tilercore/pipeline/internal/projection"
)

type recordingTiler struct {
	gotFeatures int
	maxzoom     int
}

func (rt *recordingTiler) TraverseZooms(ctx context.Context, geom orchestrator.GeomStream, index orchestrator.IndexStream, meta metadata.Metadata, out metadata.Writer) (int, error) {
	rt.gotFeatures = len(index.Entries)
	rt.maxzoom = meta.Maxzoom
	return meta.Maxzoom, nil
}

func TestRunSequencesIngestThroughTilerHandoff(t *testing.T) {
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	cfg.Maxzoom = config.Guess{Value: 10}
	cfg.Basezoom = config.Guess{Value: 8}
	cfg.Droprate = config.GuessF{Value: 2.5}

	var csv strings.Builder
	csv.WriteString("name,lon,lat\n")
	for i := 0; i < 50; i++ {
		csv.WriteString("point,1.0,1.0\n")
	}
	src := orchestrator.Source{
		Name: "points.csv",
		Data: []byte(csv.String()),
		Parser: ingest.CSVParser{
			Proj:      projection.EPSG4326{},
			LayerName: "points",
		},
	}

	meta, err := metadata.Open(filepath.Join(cfg.TempDir, "out.mbtiles"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	defer meta.Close()

	tiler := &recordingTiler{}
	code, err := orchestrator.Run(context.Background(), cfg, []orchestrator.Source{src}, nil, tiler, meta)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != logging.Success {
		t.Fatalf("Run returned exit code %v, want Success", code)
	}
	if tiler.gotFeatures != 50 {
		t.Fatalf("tiler saw %d features, want 50", tiler.gotFeatures)
	}
	if tiler.maxzoom != 10 {
		t.Fatalf("tiler saw maxzoom %d, want 10", tiler.maxzoom)
	}
}

func TestRunReturnsNoDataWithoutSources(t *testing.T) {
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	_, err := orchestrator.Run(context.Background(), cfg, nil, nil, &recordingTiler{}, nil)
	if err == nil {
		t.Fatalf("expected an error with zero sources")
	}
}

func TestRunReturnsIncompleteWhenTilerWritesFewerZooms(t *testing.T) {
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	cfg.Maxzoom = config.Guess{Value: 10}
	cfg.Basezoom = config.Guess{Value: 8}
	cfg.Droprate = config.GuessF{Value: 2.5}
	cfg.Minzoom = 0

	src := orchestrator.Source{
		Name:   "points.csv",
		Data:   []byte("name,lon,lat\npoint,1.0,1.0\n"),
		Parser: ingest.CSVParser{Proj: projection.EPSG4326{}, LayerName: "points"},
	}

	meta, err := metadata.Open(filepath.Join(cfg.TempDir, "out.mbtiles"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	defer meta.Close()

	tiler := shortTiler{wrote: 4}
	code, err := orchestrator.Run(context.Background(), cfg, []orchestrator.Source{src}, nil, tiler, meta)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != logging.Incomplete {
		t.Fatalf("Run returned %v, want Incomplete", code)
	}
}

type shortTiler struct{ wrote int }

func (s shortTiler) TraverseZooms(ctx context.Context, geom orchestrator.GeomStream, index orchestrator.IndexStream, meta metadata.Metadata, out metadata.Writer) (int, error) {
	return s.wrote, nil
}
