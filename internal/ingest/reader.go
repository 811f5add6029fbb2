// Package ingest turns raw source bytes into SerialFeature records on
// disk: one worker per input partition, each owning its own TempStore
// family (geometry, index, metadata, string pool) so no two workers ever
// contend for the same file. Ported from the source project's
// serial.go Reader/SerializationState plus the partitioning logic that
// was sketched but never wired in main.go's ReadInput.
package ingest

import (
	"sync/atomic"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/logging"
	"github.com/tilercore/pipeline/internal/stringpool"
	"github.com/tilercore/pipeline/internal/tempstore"
)

// Reader owns one worker's exclusive temp-file family.
type Reader struct {
	Geom   *tempstore.TempStore
	Index  *tempstore.TempStore
	Meta   *tempstore.TempStore
	Pool   *stringpool.Pool
	Vertex *tempstore.TempStore

	Segment int

	FileBBox feature.BBox

	// InitialX, InitialY is the reference point every feature's geometry
	// in this Reader's Geom stream is delta-encoded against (the first
	// vertex this worker ever saw), mirroring the teacher's per-worker
	// &initialX[i]/&initialY[i] slots. It belongs on Reader rather than
	// SerializationState because it is an artifact of this worker's own
	// geom file, not something a merge across workers needs to reconcile.
	InitialX, InitialY uint32
	Initialized        bool
}

// NewReader opens a fresh temp-file family under dir for segment i.
func NewReader(dir string, segment int) *Reader {
	return &Reader{
		Geom:     tempstore.Create(dir, "geom.*"),
		Index:    tempstore.Create(dir, "index.*"),
		Meta:     tempstore.Create(dir, "meta.*"),
		Pool:     stringpool.Open(dir),
		Vertex:   tempstore.Create(dir, "vertex.*"),
		Segment:  segment,
		FileBBox: feature.EmptyBBox(),
	}
}

// Close releases every backing file this reader owns.
func (r *Reader) Close() {
	r.Geom.Close()
	r.Index.Close()
	r.Meta.Close()
	r.Pool.Close()
	r.Vertex.Close()
}

// SerializationState is one worker's bookkeeping for the duration of a
// single Dispatcher.Run call: its own sequence counter, its own layer
// table, and the attribute-filtering configuration every worker shares
// read-only. Ported from the source project's SerializationState struct
// (with the package-level globals `LayerMap`/`AttributeTypes` turned into
// struct fields), generalizing the teacher's `sst := make([]SerializationState,
// cpus)` array: rather than a slice Dispatcher.Run indexes by segment,
// forWorker hands each goroutine its own clone so two workers' LayerMap
// writes or ProgressSeq bumps never race, and mergeInto folds every
// worker's mutable fields back into the orchestrator-level state once
// every worker has finished.
type SerializationState struct {
	ProgressSeq int64 // atomic; seeded per-worker at that worker's starting byte offset

	DistSum   float64
	DistCount int64
	WantDist  bool

	// AreaSum accumulates every feature's extent (polygon ring area or
	// line length, 0 for points). Autotune uses the running total to cap
	// maxzoom against the 2,097,152-tile budget.
	AreaSum float64

	Maxzoom  int
	Basezoom int

	LayerMap       map[string]LayerEntry
	AttributeTypes map[string]feature.ValueKind

	Exclude    []string
	Include    []string
	ExcludeAll bool

	Warn *logging.OnceWarner
}

// LayerEntry tracks one output layer's running feature-type counts and
// the distinct attribute keys it has seen, mirroring the teacher's
// mbtiles.go LayerEntry.
type LayerEntry struct {
	ID                      int
	Points, Lines, Polygons int64
	FileKeys                map[string]feature.ValueKind
}

// NewSerializationState returns a state seeded from cfg.
func NewSerializationState(cfg config.Config) *SerializationState {
	return &SerializationState{
		Maxzoom:        int(cfg.Maxzoom.Value),
		Basezoom:       int(cfg.Basezoom.Value),
		LayerMap:       map[string]LayerEntry{},
		AttributeTypes: map[string]feature.ValueKind{},
		Exclude:        cfg.Exclude,
		Include:        cfg.Include,
		ExcludeAll:     cfg.ExcludeAll,
		Warn:           logging.NewOnceWarner(),
	}
}

func (s *SerializationState) bumpProgress() int64 {
	return atomic.AddInt64(&s.ProgressSeq, 1)
}

// forWorker returns an independent SerializationState for one
// Dispatcher.Run worker goroutine: the config-derived fields (Warn,
// AttributeTypes, Exclude/Include/ExcludeAll, WantDist, Maxzoom,
// Basezoom) are shared with s — Warn is already mutex-protected and the
// rest are never written after setup — while LayerMap and the running
// accumulators start fresh, and ProgressSeq starts at startSeq (that
// worker's absolute byte offset into the overall run), so the stream of
// IDs/Seq values a worker hands out tracks byte position per spec's
// ordering guarantee instead of goroutine scheduling order.
func (s *SerializationState) forWorker(startSeq int64) *SerializationState {
	return &SerializationState{
		ProgressSeq:    startSeq,
		WantDist:       s.WantDist,
		Maxzoom:        s.Maxzoom,
		Basezoom:       s.Basezoom,
		LayerMap:       map[string]LayerEntry{},
		AttributeTypes: s.AttributeTypes,
		Exclude:        s.Exclude,
		Include:        s.Include,
		ExcludeAll:     s.ExcludeAll,
		Warn:           s.Warn,
	}
}

// mergeInto folds one finished worker's mutable fields into s: worker
// layers are merged into s.LayerMap by name (assigning a fresh ID the
// first time a name is seen, in the order Dispatcher.Run hands workers
// back — ascending segment order — so a rerun over the same input
// assigns the same IDs), and the running accumulators are summed.
func (s *SerializationState) mergeInto(worker *SerializationState) {
	for name, w := range worker.LayerMap {
		entry, ok := s.LayerMap[name]
		if !ok {
			entry = LayerEntry{ID: len(s.LayerMap), FileKeys: map[string]feature.ValueKind{}}
		}
		entry.Points += w.Points
		entry.Lines += w.Lines
		entry.Polygons += w.Polygons
		for k, kind := range w.FileKeys {
			entry.FileKeys[k] = kind
		}
		s.LayerMap[name] = entry
	}
	s.DistSum += worker.DistSum
	s.DistCount += worker.DistCount
	s.AreaSum += worker.AreaSum
}
