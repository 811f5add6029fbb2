// Package orchestrator sequences the whole pipeline a single run of
// cmd/tiler-core performs: ingest, pool/vertex/node merge, spatial sort
// with an embedded drop-policy pass, auto-tuning, a second drop-policy
// rewrite pass, and the handoff to an external tiler. Grounded on the
// overall control flow of the source project's main()/ReadInput, with its
// scratch/debug code (ad hoc fmt.Println probes, the Windows-only disk
// check) left out or rewritten elsewhere.
package orchestrator

import (
	"context"
	"os"

	"github.com/tilercore/pipeline/internal/ingest"
	"github.com/tilercore/pipeline/internal/metadata"
	"github.com/tilercore/pipeline/internal/spatialsort"
)

// Source is one input file handed to the orchestrator: its name (used in
// error messages), its raw bytes, and the FormatParser that knows how to
// decode them. Source carries no layer name of its own; the layer name
// features get comes from the parser (e.g. GeoJSONParser.LayerName).
type Source struct {
	Name   string
	Data   []byte
	Parser ingest.FormatParser
}

// GeomStream is every worker's final, minzoom-rewritten geometry file,
// handed to the Tiler as a parallel (files, sizes) pair exactly as the
// teacher's TraverseZooms(geomFiles []*os.File, geomSizes []int64, ...)
// expects it — one file per ingest segment, read with a single shared
// pool arena behind it.
type GeomStream struct {
	Files []*os.File
	Sizes []int64

	Pool     *os.File
	PoolBase []int64
}

// IndexStream is the fully sorted, minzoom-resolved index: every
// feature's spatial key, geometry-file location, and final
// FeatureMinzoom, in ascending spatial-key order.
type IndexStream struct {
	Entries []spatialsort.Result
}

// Tiler is the external collaborator that walks IndexStream in spatial
// order, clips and simplifies geometry per zoom, and writes encoded tiles
// through out. TraverseZooms returns the highest zoom it actually wrote,
// which may be less than the resolved maxzoom if it gave up early (a tile
// too large, a time budget) — Run reports Incomplete rather than Success
// whenever it falls below the resolved maxzoom or cfg.Minzoom. Signature grounded on the
// teacher's tile.go TraverseZooms(geomFiles, geomSizes, ..., outdb
// *sql.DB, ...), with the sprawling positional parameter list collapsed
// into the GeomStream/IndexStream/Metadata/Writer collaborator types.
type Tiler interface {
	TraverseZooms(ctx context.Context, geom GeomStream, index IndexStream, meta metadata.Metadata, out metadata.Writer) (writtenMaxzoom int, err error)
}

// MetadataWriter is the mbtiles-shaped sink Run writes the finished
// tileset's metadata row and (via the Tiler, which holds the same handle)
// its tile blobs to.
type MetadataWriter = metadata.Writer
