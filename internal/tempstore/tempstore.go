// Package tempstore implements the append-only, mmap-readable temporary
// file family every ingest worker owns: geometry, index, metadata,
// string-pool, tree-pool, and vertex-pool streams. Every file is unlinked
// immediately after creation so it cannot outlive the process, matching
// the source project's menfile.go / ioutil.TempFile-then-remove idiom.
package tempstore

import (
	"os"

	"github.com/tysonmote/gommap"
	"golang.org/x/sys/unix"

	"github.com/tilercore/pipeline/internal/logging"
)

// TempStore wraps a single unlinked temp file opened for append-write,
// with an atomic-ish running offset (writers are expected to be
// externally serialized per worker, matching the "each worker owns its
// family exclusively" concurrency rule).
type TempStore struct {
	file *os.File
	pos  int64
}

// Create opens a uniquely named file in dir, unlinks it immediately, and
// returns a TempStore ready for Append. Fatal on failure per the error
// taxonomy (IO is unrecoverable for a worker).
func Create(dir, pattern string) *TempStore {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		logging.Fatal(logging.Open, "tempstore: create %s/%s: %v", dir, pattern, err)
	}
	if err := os.Remove(f.Name()); err != nil {
		logging.Fatal(logging.Open, "tempstore: unlink %s: %v", f.Name(), err)
	}
	return &TempStore{file: f}
}

// Append writes p to the end of the stream and returns the byte offset at
// which the write started (the pre-write offset), matching
// SerializeByte's fpos-before-write semantics in the source project.
func (t *TempStore) Append(p []byte) int64 {
	start := t.pos
	n, err := t.file.Write(p)
	if err != nil {
		logging.Fatal(logging.Write, "tempstore: write: %v", err)
	}
	t.pos += int64(n)
	if int64(n) != int64(len(p)) {
		logging.Fatal(logging.Write, "tempstore: short write %d of %d bytes", n, len(p))
	}
	return start
}

// Pos returns the current append offset (== total bytes written so far).
func (t *TempStore) Pos() int64 { return t.pos }

// File exposes the underlying descriptor for callers that need raw
// pread/pwrite access (the external-sort stages).
func (t *TempStore) File() *os.File { return t.file }

// Rewind seeks back to the start for sequential re-read after the writer
// is done appending.
func (t *TempStore) Rewind() {
	if _, err := t.file.Seek(0, 0); err != nil {
		logging.Fatal(logging.Read, "tempstore: rewind: %v", err)
	}
}

// Close releases the descriptor. Since the backing path was unlinked at
// creation, this is the point the bytes actually vanish.
func (t *TempStore) Close() {
	if err := t.file.Close(); err != nil {
		logging.Fatal(logging.Close, "tempstore: close: %v", err)
	}
}

// MappedRegion is a bounded, immutable-by-contract mmap'd byte slice. Its
// lifetime is explicit: callers must call Close when done, pairing every
// mmap with an unmap (the concurrency model's mmap-lifecycle invariant).
type MappedRegion struct {
	Bytes gommap.MMap
}

// Advice selects the madvise hint appropriate to how a region will be
// scanned.
type Advice int

const (
	AdviceRandom Advice = iota
	AdviceSequential
)

// Mmap maps the whole file read-only and applies the requested access
// hint. Index files are opened with AdviceRandom (read from multiple
// sort-merge cursors); geometry files with AdviceSequential.
func Mmap(f *os.File, advice Advice) *MappedRegion {
	m, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_PRIVATE)
	if err != nil {
		logging.Fatal(logging.Memory, "tempstore: mmap: %v", err)
	}
	switch advice {
	case AdviceRandom:
		_ = unix.Madvise(m, unix.MADV_RANDOM)
		_ = unix.Madvise(m, unix.MADV_WILLNEED)
	case AdviceSequential:
		_ = unix.Madvise(m, unix.MADV_SEQUENTIAL)
		_ = unix.Madvise(m, unix.MADV_WILLNEED)
	}
	return &MappedRegion{Bytes: m}
}

// MmapWritable maps the whole file read-write, used only by the minzoom
// rewrite pass which flips a single byte per record in place.
func MmapWritable(f *os.File) *MappedRegion {
	m, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		logging.Fatal(logging.Memory, "tempstore: mmap rw: %v", err)
	}
	return &MappedRegion{Bytes: m}
}

// Close unmaps the region. After this call Bytes must not be accessed.
func (r *MappedRegion) Close() {
	if err := r.Bytes.UnsafeUnmap(); err != nil {
		logging.Fatal(logging.Memory, "tempstore: unmap: %v", err)
	}
}
