package tilerstub_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/tilercore/pipeline/internal/metadata"
	"github.com/tilercore/pipeline/internal/orchestrator"
	"github.com/tilercore/pipeline/internal/tilerstub"
)

func TestStubWritesRootTileAndReportsConfiguredMaxzoom(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.mbtiles")
	w, err := metadata.Open(dbPath)
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	defer w.Close()

	geom := orchestrator.GeomStream{}
	index := orchestrator.IndexStream{}
	md := metadata.Metadata{Maxzoom: 7}

	got, err := (tilerstub.Stub{}).TraverseZooms(context.Background(), geom, index, md, w)
	if err != nil {
		t.Fatalf("TraverseZooms: %v", err)
	}
	if got != 7 {
		t.Fatalf("TraverseZooms returned %d, want 7", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var roots int
	if err := db.QueryRow("select count(*) from tiles where zoom_level = 0 and tile_column = 0 and tile_row = 0").Scan(&roots); err != nil {
		t.Fatalf("query root tile: %v", err)
	}
	if roots != 1 {
		t.Fatalf("found %d root tiles, want 1", roots)
	}
}

func TestStubSatisfiesTilerInterface(t *testing.T) {
	var _ orchestrator.Tiler = tilerstub.Stub{}
}
