package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/tilercore/pipeline/internal/autotune"
	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/diskguard"
	"github.com/tilercore/pipeline/internal/droppolicy"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/ingest"
	"github.com/tilercore/pipeline/internal/logging"
	"github.com/tilercore/pipeline/internal/metadata"
	"github.com/tilercore/pipeline/internal/pool"
	"github.com/tilercore/pipeline/internal/projection"
	"github.com/tilercore/pipeline/internal/spatialsort"
	"github.com/tilercore/pipeline/internal/stringpool"
	"github.com/tilercore/pipeline/internal/tempstore"
)

// Run ingests every source, merges each worker's string pool and
// vertex/node streams, sorts the combined index into spatial-key order
// with a provisional drop policy, auto-tunes any zoom/basezoom/droprate
// knob left on "guess", rewrites every feature's minzoom byte in place
// against the final policy, and hands the result to tiler. Grounded on
// the source project's main()/ReadInput sequencing, minus the scratch
// debug code and the Windows-only disk probe (see internal/diskguard).
func Run(ctx context.Context, cfg config.Config, sources []Source, proj projection.Projection, tiler Tiler, meta MetadataWriter) (logging.ExitCode, error) {
	if len(sources) == 0 {
		return logging.NoData, fmt.Errorf("orchestrator: no sources")
	}
	if proj == nil {
		proj = projection.EPSG4326{}
	}

	diskStart, diskErr := diskguard.Usage(cfg.TempDir)
	if diskErr != nil {
		logrus.Warnf("orchestrator: disk usage probe failed: %v", diskErr)
	}

	sst := ingest.NewSerializationState(cfg)
	sst.WantDist = cfg.Maxzoom.Auto || cfg.Basezoom.Auto

	var readers []*ingest.Reader
	var stats ingest.Stats
	fileBBox := feature.EmptyBBox()

	var seqOffset int64
	for _, src := range sources {
		d := &ingest.Dispatcher{Parser: src.Parser, Dir: cfg.TempDir, Base: len(readers), StartSeq: seqOffset}
		rs, st, err := d.Run(sst, cfg, src.Data)
		if err != nil {
			return logging.Read, fmt.Errorf("orchestrator: ingest %s: %w", src.Name, err)
		}
		readers = append(readers, rs...)
		stats.Read += st.Read
		stats.Dropped += st.Dropped
		for _, r := range rs {
			fileBBox.Extend(r.FileBBox[0], r.FileBBox[1])
			fileBBox.Extend(r.FileBBox[2], r.FileBBox[3])
		}
		seqOffset += int64(len(src.Data))
	}
	if stats.Read == 0 {
		return logging.NoData, fmt.Errorf("orchestrator: no features survived ingest")
	}
	logProgress("ingest", stats.Read, stats.Dropped)

	if diskErr == nil {
		checkDisk(readers, diskStart.Free)
	}

	pools := make([]*stringpool.Pool, len(readers))
	for i, r := range readers {
		pools[i] = r.Pool
	}
	mergedPool, poolBase := stringpool.Merge(cfg.TempDir, pools)

	nodeTable, err := mergeVertices(readers)
	if err != nil {
		return logging.Memory, fmt.Errorf("orchestrator: vertex/node merge: %w", err)
	}
	logrus.Infof("shared-node table: %d distinct nodes", len(nodeTable.Keys))

	var entries []feature.IndexEntry
	for _, r := range readers {
		es, err := readIndexEntries(r)
		if err != nil {
			return logging.Read, fmt.Errorf("orchestrator: read index: %w", err)
		}
		entries = append(entries, es...)
	}

	provisional := droppolicy.Policy{
		Maxzoom:                  provisionalMaxzoom(cfg),
		Basezoom:                 -1,
		Droprate:                 cfg.Droprate.Value,
		Gamma:                    cfg.Gamma,
		GammaEnabled:             false,
		LineDrop:                 cfg.LineDrop,
		PolygonDrop:              cfg.PolygonDrop,
		PreserveDensityThreshold: cfg.PreserveDensityThreshold,
	}
	sorted := spatialsort.Sort(entries, provisional)

	logMemory()

	res, err := autotune.Autotune(bytes.NewReader(marshalEntries(sorted)), int64(len(sorted)), cfg,
		autotune.DistanceStats{Count: sst.DistCount, Sum: sst.DistSum}, sst.AreaSum)
	if err != nil {
		return logging.Impossible, fmt.Errorf("orchestrator: autotune: %w", err)
	}
	logrus.Infof("autotune: maxzoom=%d basezoom=%d droprate=%.3f key-gap-stddev=%.3f",
		res.Maxzoom, res.Basezoom, res.Droprate, res.KeyGapStddev)

	final := droppolicy.Policy{
		Maxzoom:                  res.Maxzoom,
		Basezoom:                 res.Basezoom,
		Droprate:                 res.Droprate,
		Gamma:                    cfg.Gamma,
		GammaEnabled:             cfg.Gamma > 0,
		LineDrop:                 cfg.LineDrop,
		PolygonDrop:              cfg.PolygonDrop,
		PreserveDensityThreshold: cfg.PreserveDensityThreshold,
	}
	states := droppolicy.Prepare(final.Maxzoom, final.Basezoom, final.Droprate)
	finalResults := make([]spatialsort.Result, len(sorted))
	for i, r := range sorted {
		mz := droppolicy.CalcMinzoom(r.IndexEntry, states, final)
		finalResults[i] = spatialsort.Result{IndexEntry: r.IndexEntry, Minzoom: mz}
	}

	if err := rewriteMinzooms(readers, finalResults); err != nil {
		return logging.Write, fmt.Errorf("orchestrator: minzoom rewrite: %w", err)
	}

	geom := GeomStream{Pool: mergedPool, PoolBase: poolBase}
	for _, r := range readers {
		r.Geom.Rewind()
		geom.Files = append(geom.Files, r.Geom.File())
		geom.Sizes = append(geom.Sizes, r.Geom.Pos())
	}
	index := IndexStream{Entries: finalResults}

	md := buildMetadata(cfg, sst, fileBBox, res.Maxzoom, proj)

	writtenMaxzoom, err := tiler.TraverseZooms(ctx, geom, index, md, meta)
	if err != nil {
		return logging.Write, fmt.Errorf("orchestrator: tiler: %w", err)
	}
	if err := meta.Write(md); err != nil {
		return logging.Write, fmt.Errorf("orchestrator: metadata write: %w", err)
	}

	if writtenMaxzoom < cfg.Minzoom || writtenMaxzoom < res.Maxzoom {
		return logging.Incomplete, nil
	}
	return logging.Success, nil
}

func provisionalMaxzoom(cfg config.Config) int {
	if cfg.Maxzoom.Auto {
		return config.MaxZoomHardLimit
	}
	return cfg.Maxzoom.Value
}

func mergeVertices(readers []*ingest.Reader) (*pool.NodeTable, error) {
	streams := make([]io.ReaderAt, len(readers))
	for i, r := range readers {
		s, err := pool.LoadSortedStream(r.Vertex)
		if err != nil {
			return nil, err
		}
		streams[i] = s
	}
	nodes, err := (pool.VertexDedup{}).Run(streams)
	if err != nil {
		return nil, err
	}
	keys := make([]uint64, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Index
	}
	return (pool.NodeDedup{}).Run(keys)
}

func readIndexEntries(r *ingest.Reader) ([]feature.IndexEntry, error) {
	r.Index.Rewind()
	raw, err := io.ReadAll(r.Index.File())
	if err != nil {
		return nil, err
	}
	n := len(raw) / feature.IndexSize
	out := make([]feature.IndexEntry, n)
	for i := 0; i < n; i++ {
		out[i] = feature.UnmarshalIndexEntry(raw[i*feature.IndexSize : (i+1)*feature.IndexSize])
	}
	return out, nil
}

func marshalEntries(results []spatialsort.Result) []byte {
	buf := make([]byte, 0, len(results)*feature.IndexSize)
	for _, r := range results {
		b := r.IndexEntry.Marshal()
		buf = append(buf, b[:]...)
	}
	return buf
}

// rewriteMinzooms patches the single FeatureMinzoom byte of every record
// in place, mmapping each reader's geometry file read-write exactly once
// regardless of how many of its records need patching. Ported from the
// source project's post-sort fixup loop (main.go's "fix up dropping"
// block), restructured from a single shared mmap over one giant geometry
// file into one mmap per worker, since this module keeps geometry
// partitioned per worker instead of concatenated into one file.
func rewriteMinzooms(readers []*ingest.Reader, results []spatialsort.Result) error {
	bySegment := make(map[int64][]spatialsort.Result, len(readers))
	for _, r := range results {
		bySegment[r.Segment] = append(bySegment[r.Segment], r)
	}
	for seg, rs := range bySegment {
		if seg < 0 || int(seg) >= len(readers) {
			return fmt.Errorf("orchestrator: index entry references unknown segment %d", seg)
		}
		r := readers[seg]
		region := tempstore.MmapWritable(r.Geom.File())
		for _, e := range rs {
			off := e.Start + feature.MinzoomOffset
			if off < 0 || off >= int64(len(region.Bytes)) {
				region.Close()
				return fmt.Errorf("orchestrator: minzoom offset %d out of range for segment %d", off, seg)
			}
			region.Bytes[off] = byte(e.Minzoom)
		}
		region.Close()
	}
	return nil
}

func buildMetadata(cfg config.Config, sst *ingest.SerializationState, bb feature.BBox, maxzoom int, proj projection.Projection) metadata.Metadata {
	minLon, minLat := proj.UnProject(bb[0], bb[1], 32)
	maxLon, maxLat := proj.UnProject(bb[2], bb[3], 32)
	centerLon, centerLat := (minLon+maxLon)/2, (minLat+maxLat)/2

	layers := make([]metadata.VectorLayer, 0, len(sst.LayerMap))
	for name, entry := range sst.LayerMap {
		fields := make(map[string]string, len(entry.FileKeys))
		for k, kind := range entry.FileKeys {
			fields[k] = kindName(kind)
		}
		layers = append(layers, metadata.VectorLayer{
			ID:      name,
			Minzoom: cfg.Minzoom,
			Maxzoom: maxzoom,
			Fields:  fields,
		})
	}

	return metadata.Metadata{
		Format:       "pbf",
		Bounds:       [4]float64{minLon, minLat, maxLon, maxLat},
		Center:       [3]float64{centerLon, centerLat, float64(cfg.Minzoom)},
		Minzoom:      cfg.Minzoom,
		Maxzoom:      maxzoom,
		VectorLayers: layers,
	}
}

func kindName(k feature.ValueKind) string {
	switch k {
	case feature.KindString:
		return "String"
	case feature.KindBool:
		return "Boolean"
	default:
		return "Number"
	}
}

func logProgress(stage string, read, dropped int64) {
	logrus.Infof("%s: %d features read, %d dropped", stage, read, dropped)
}

// checkDisk warns, but does not abort, when the temp-file families ingest
// has committed so far look likely to exhaust the space free when this
// run started. Ported from the teacher's CheckDisk, which summed
// Metapos + 2*Geompos + 2*Indexpos + PoolMemFile.Len + TreeMemFile.Len
// per reader — the 2x factors are that estimate's headroom for
// geometry/index; records here are never resized once written (the
// minzoom rewrite patches one byte in place).
// This module adds each reader's vertex stream (a temp-file family the
// teacher never had) and uses only the pool's arena length, since
// stringpool.Pool exposes Arena() but not its BST tree file.
func checkDisk(readers []*ingest.Reader, freeAtStart int64) {
	var committed int64
	for _, r := range readers {
		committed += r.Meta.Pos() + 2*r.Geom.Pos() + 2*r.Index.Pos() + r.Vertex.Pos() + r.Pool.Arena().Len
	}
	if diskguard.WillExhaust(committed, freeAtStart) {
		logrus.Warnf("you will probably run out of disk space: %d bytes used or committed, of %d originally available", committed, freeAtStart)
	}
}

// logMemory reports total/free memory the way the source project's radix
// sort did right before committing to an in-memory sort pass
// (main.go's `mem.VirtualMemory()` probe in its `radix` function).
func logMemory() {
	v, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	logrus.Infof("memory: total=%d free=%d used=%.1f%%", v.Total, v.Free, v.UsedPercent)
}
