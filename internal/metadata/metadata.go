// Package metadata writes the tile pyramid's metadata table to an
// mbtiles-shaped SQLite database, adapted from the source project's
// mbtiles.go (mbtilesOpen/mbtilesWriteTile/mbtilesWriteMetadata), kept on
// github.com/mattn/go-sqlite3 as the concrete driver.
package metadata

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Metadata is the set of name/value pairs the mbtiles spec's metadata
// table expects, plus the vector_layers JSON blob describing each
// layer's attribute schema (teacher's AddToFileKeys/TypeAndStringStats
// bookkeeping, flattened into the wire shape consumers expect).
type Metadata struct {
	Name         string
	Description  string
	Version      string
	Format       string // "pbf"
	Bounds       [4]float64
	Center       [3]float64
	Minzoom      int
	Maxzoom      int
	Attribution  string
	VectorLayers []VectorLayer
}

// VectorLayer describes one tile layer's id and attribute key/type map,
// serialized into the metadata table's vector_layers JSON value.
type VectorLayer struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	Minzoom     int               `json:"minzoom"`
	Maxzoom     int               `json:"maxzoom"`
	Fields      map[string]string `json:"fields"`
}

// Writer implements the orchestrator's MetadataWriter collaborator
// interface against an mbtiles SQLite file.
type Writer interface {
	Write(m Metadata) error
	WriteTile(z, x, y int, data []byte) error
	Close() error
}

type sqliteWriter struct {
	db *sql.DB
}

// Open creates (or reuses) an mbtiles database at path with the
// teacher's pragma set (synchronous off, exclusive locking, journal
// deleted rather than WAL — all chosen for single-writer bulk-load
// throughput over durability) and its tiles/metadata schema.
func Open(path string) (Writer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA synchronous=0",
		"PRAGMA locking_mode=EXCLUSIVE",
		"PRAGMA journal_mode=DELETE",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	for _, ddl := range []string{
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index if not exists name on metadata (name);",
		"create unique index if not exists tile_index on tiles(zoom_level, tile_column, tile_row);",
	} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &sqliteWriter{db: db}, nil
}

// Write upserts every metadata row, including a JSON-encoded
// vector_layers entry built from m.VectorLayers.
func (w *sqliteWriter) Write(m Metadata) error {
	layers, err := json.Marshal(m.VectorLayers)
	if err != nil {
		return err
	}

	rows := [][2]string{
		{"name", m.Name},
		{"description", m.Description},
		{"version", m.Version},
		{"format", m.Format},
		{"bounds", boundsString(m.Bounds)},
		{"center", centerString(m.Center)},
		{"minzoom", fmt.Sprintf("%d", m.Minzoom)},
		{"maxzoom", fmt.Sprintf("%d", m.Maxzoom)},
		{"attribution", m.Attribution},
		{"vector_layers", string(layers)},
		{"json", string(layers)},
	}
	for _, r := range rows {
		if _, err := w.db.Exec("insert or replace into metadata (name, value) values (?, ?);", r[0], r[1]); err != nil {
			return err
		}
	}
	return nil
}

// WriteTile inserts one encoded tile, y-flipped to the TMS convention
// mbtiles uses, matching the teacher's mbtilesWriteTile verbatim.
func (w *sqliteWriter) WriteTile(z, x, y int, data []byte) error {
	_, err := w.db.Exec(
		"insert into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);",
		z, x, 1<<uint(z)-1-y, data,
	)
	return err
}

func (w *sqliteWriter) Close() error {
	if _, err := w.db.Exec("ANALYZE;"); err != nil {
		w.db.Close()
		return err
	}
	return w.db.Close()
}

func boundsString(b [4]float64) string {
	return fmt.Sprintf("%g,%g,%g,%g", b[0], b[1], b[2], b[3])
}

func centerString(c [3]float64) string {
	return fmt.Sprintf("%g,%g,%g", c[0], c[1], c[2])
}
