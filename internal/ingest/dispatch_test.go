package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/projection"
)

// pointLineParser is a minimal FormatParser, one "lon,lat" point per line,
// used only to exercise Dispatcher.Run/SerializationState merging in
// isolation from the format-sniffing concerns CSVParser and GeoJSONParser
// each carry (CSVParser expects a header on every chunk; GeoJSONParser's
// FeatureCollection-vs-lines sniff only works on a whole document, not an
// arbitrary byte-range slice of one) — neither of which this review is
// about.
type pointLineParser struct{ layer string }

func (p pointLineParser) Parse(sst *SerializationState, r *Reader, cfg config.Config, in io.Reader) (read, dropped int64, err error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1<<16), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		read++
		parts := strings.SplitN(line, ",", 3)
		lon, lerr := strconv.ParseFloat(parts[0], 64)
		lat, aerr := strconv.ParseFloat(parts[1], 64)
		if lerr != nil || aerr != nil {
			dropped++
			continue
		}
		x, y := projection.EPSG4326{}.Project(lon, lat, 32)
		raw := RawFeature{
			Type:      feature.Point,
			LayerName: p.layer,
			Geometry:  feature.DrawSeq{{X: x, Y: y, Op: feature.OpMoveTo}},
			Keys:      []string{"i"},
			Values:    []feature.Value{{S: line, Kind: feature.KindString}},
		}
		if !SerializeFeature(sst, r, cfg, raw) {
			dropped++
		}
	}
	return read, dropped, scanner.Err()
}

// readIndexEntriesForTest mirrors the orchestrator's own readIndexEntries,
// reading every IndexEntry one Reader's segment wrote.
func readIndexEntriesForTest(r *Reader) ([]feature.IndexEntry, error) {
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

// buildPointLines returns n "lon,lat" lines padded wide enough that the
// whole document clears Dispatcher.Run's 1MB single-worker threshold.
func buildPointLines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d.0,%d.0,%s\n", i%180, i%90, strings.Repeat("x", 4096))
	}
	return b.String()
}

// TestDispatcherRunMergesPerWorkerState drives Dispatcher.Run with enough
// input to force multiple concurrent workers (n>1 per dispatch.go's 1MB
// threshold), and checks that every worker's LayerMap lands in the
// orchestrator-level SerializationState exactly once, with no feature lost
// to an unsynchronized concurrent map write.
func TestDispatcherRunMergesPerWorkerState(t *testing.T) {
	cfg := config.Default()
	cfg.CPUs = 4

	const n = 400
	doc := buildPointLines(n)
	if len(doc) < 1<<20 {
		t.Fatalf("fixture is %d bytes, want >= 1MB to force multiple workers", len(doc))
	}

	sst := NewSerializationState(cfg)
	d := &Dispatcher{
		Parser: pointLineParser{layer: "points"},
		Dir:    t.TempDir(),
	}

	readers, stats, err := d.Run(sst, cfg, []byte(doc))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	if len(readers) < 2 {
		t.Fatalf("expected multiple workers for a %d-byte input, got %d", len(doc), len(readers))
	}
	if stats.Read != n || stats.Dropped != 0 {
		t.Fatalf("read=%d dropped=%d, want %d,0", stats.Read, stats.Dropped, n)
	}

	entry, ok := sst.LayerMap["points"]
	if !ok {
		t.Fatalf("expected merged LayerMap to contain the \"points\" layer")
	}
	if entry.Points != int64(n) {
		t.Fatalf("merged layer point count = %d, want %d (a racy/unmerged LayerMap would undercount)", entry.Points, n)
	}
	if _, ok := entry.FileKeys["i"]; !ok {
		t.Fatalf("merged layer is missing the \"i\" attribute key")
	}

	seen := map[int]bool{}
	for _, r := range readers {
		if seen[r.Segment] {
			t.Fatalf("duplicate reader segment %d", r.Segment)
		}
		seen[r.Segment] = true
	}
}

// TestDispatcherRunSeedsSeqByByteOffset checks that every worker's emitted
// Seq sits at or above the Dispatcher's StartSeq, so a source dispatched
// after others in the same run (StartSeq = cumulative bytes so far) hands
// out Seq values that correlate with absolute input byte order, the
// ordering spatialsort's (Key, Seq) tie-break and rerun-determinism both
// depend on, rather than with goroutine scheduling order.
func TestDispatcherRunSeedsSeqByByteOffset(t *testing.T) {
	cfg := config.Default()
	cfg.CPUs = 4
	cfg.InputOrder = true

	doc := buildPointLines(400)
	sst := NewSerializationState(cfg)
	d := &Dispatcher{
		Parser:   pointLineParser{layer: "points"},
		Dir:      t.TempDir(),
		StartSeq: 1 << 20, // simulate a second source dispatched after a 1MB first source
	}

	readers, _, err := d.Run(sst, cfg, []byte(doc))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	for _, r := range readers {
		entries, err := readIndexEntriesForTest(r)
		if err != nil {
			t.Fatalf("reading segment %d index: %v", r.Segment, err)
		}
		for _, e := range entries {
			if e.Seq < d.StartSeq {
				t.Fatalf("segment %d produced Seq %d below the dispatcher's StartSeq %d", r.Segment, e.Seq, d.StartSeq)
			}
		}
	}
}
