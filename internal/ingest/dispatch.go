package ingest

import (
	"bytes"
	"io"
	"sync"

	"github.com/tilercore/pipeline/internal/config"
)

// FormatParser decodes one contiguous byte range of a source into
// SerializeFeature calls against its own Reader. CSVParser and
// GeoJSONParser are the in-tree implementations; binary formats
// (flat-geobuf, geobuf) are external collaborators that satisfy the same
// interface but decode framing themselves.
type FormatParser interface {
	Parse(sst *SerializationState, r *Reader, cfg config.Config, in io.Reader) (read, dropped int64, err error)
}

// Stats summarizes one Dispatcher.Run call.
type Stats struct {
	Read    int64
	Dropped int64
}

// Dispatcher partitions one source's bytes across N=cfg.CPUs workers and
// runs FormatParser.Parse concurrently, one Reader (and hence one
// exclusive temp-file family) per worker. Ported from the partitioning
// sketch in original_source/main.cpp's `segs[CPUS]` byte-range split,
// which the source project's Go port had not wired up.
type Dispatcher struct {
	Parser FormatParser
	Dir    string

	// Base offsets every worker's Reader.Segment by this amount, so an
	// orchestrator dispatching several sources in turn can keep every
	// Reader's segment number — and hence every IndexEntry.Segment it
	// writes — unique across the whole run instead of restarting at 0
	// for each source.
	Base int

	// StartSeq offsets every worker's starting sequence counter by this
	// amount: the orchestrator sets it to the cumulative byte length of
	// every source dispatched so far in the run, so a worker's ProgressSeq
	// (and hence every feature's Seq, per spec's byte-order tie-break)
	// reflects this source's absolute position in the whole input rather
	// than restarting at 0 for each source.
	StartSeq int64
}

// Run splits src into cfg.CPUs newline-aligned partitions (or runs it
// serially if src is small enough that splitting isn't worthwhile),
// parses each concurrently — each worker against its own SerializationState
// clone seeded at its own segment's starting byte offset, per
// SerializationState.forWorker — and returns the finished Readers in
// segment order alongside aggregate Stats. Every worker's clone is merged
// back into sst, in ascending segment order, before Run returns.
func (d *Dispatcher) Run(sst *SerializationState, cfg config.Config, src []byte) ([]*Reader, Stats, error) {
	n := cfg.CPUs
	if n < 1 {
		n = 1
	}
	if len(src) < 1<<20 || n == 1 {
		n = 1
	}

	bounds := partition(src, n, '\n')

	readers := make([]*Reader, len(bounds)-1)
	workers := make([]*SerializationState, len(bounds)-1)
	var stats Stats
	var mu sync.Mutex
	var wg sync.WaitGroup
	errCh := make(chan error, len(bounds)-1)

	for seg := 0; seg < len(bounds)-1; seg++ {
		seg := seg
		r := NewReader(d.Dir, d.Base+seg)
		readers[seg] = r
		worker := sst.forWorker(d.StartSeq + int64(bounds[seg]))
		workers[seg] = worker
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunk := src[bounds[seg]:bounds[seg+1]]
			read, dropped, err := d.Parser.Parse(worker, r, cfg, bytes.NewReader(chunk))
			mu.Lock()
			stats.Read += read
			stats.Dropped += dropped
			mu.Unlock()
			if err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for _, worker := range workers {
		sst.mergeInto(worker)
	}
	for err := range errCh {
		if err != nil {
			return readers, stats, err
		}
	}
	return readers, stats, nil
}

// partition returns n+1 byte offsets bounding n near-equal ranges of
// src, with every interior boundary nudged forward to the next sep byte
// so no partition splits a record. Ported from original_source/main.cpp's
// segs[i] = len*i/N boundary computation.
func partition(src []byte, n int, sep byte) []int {
	bounds := make([]int, n+1)
	bounds[0] = 0
	bounds[n] = len(src)
	for i := 1; i < n; i++ {
		pos := len(src) * i / n
		for pos < len(src) && src[pos] != sep {
			pos++
		}
		if pos < len(src) {
			pos++ // include the separator in the earlier partition
		}
		if pos < bounds[i-1] {
			pos = bounds[i-1]
		}
		bounds[i] = pos
	}
	return bounds
}
