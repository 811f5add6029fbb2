package tempstore

import (
	"os"

	"github.com/tysonmote/gommap"

	"github.com/tilercore/pipeline/internal/logging"
)

const (
	memFileIncrement = 131072
	memFileInitial   = 256
)

// MemFile is a growable mmap'd buffer backed by an unlinked temp file: the
// first memFileInitial bytes are resident immediately, and the mapping is
// grown (truncate + re-map) in memFileIncrement-sized steps whenever a
// write would overrun it. Ported from the source project's menfile.go
// (MemFileOpen/MemFileWrite/MemFileClose) with the raw package-level
// functions turned into methods on a value callers can own per worker.
type MemFile struct {
	file *os.File
	Map  gommap.MMap
	Len  int64
	Off  int64

	// Tree is the offset of the string-pool dedup tree's root node within
	// this MemFile, 0 meaning "empty" (offset 0 is reserved by a sentinel
	// node written at open time so a real node never lands there).
	Tree uint64
}

// OpenMemFile creates a fresh unlinked temp file and maps its first
// memFileInitial bytes.
func OpenMemFile(dir, pattern string) *MemFile {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		logging.Fatal(logging.Open, "memfile: create: %v", err)
	}
	if err := os.Remove(f.Name()); err != nil {
		logging.Fatal(logging.Open, "memfile: unlink: %v", err)
	}
	if err := f.Truncate(memFileInitial); err != nil {
		logging.Fatal(logging.Write, "memfile: truncate: %v", err)
	}
	m, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		logging.Fatal(logging.Memory, "memfile: mmap: %v", err)
	}
	return &MemFile{file: f, Map: m, Len: memFileInitial}
}

// Write appends p, growing and re-mapping the backing file first if
// necessary. Returns the number of bytes written (always len(p); panics
// are replaced by a fatal exit per the IO error taxonomy).
func (mf *MemFile) Write(p []byte) int {
	need := int64(len(p))
	if mf.Off+need > mf.Len {
		if err := mf.Map.UnsafeUnmap(); err != nil {
			logging.Fatal(logging.Memory, "memfile: unmap for grow: %v", err)
		}
		mf.Len += (need + memFileIncrement - 1) / memFileIncrement * memFileIncrement
		if err := mf.file.Truncate(mf.Len); err != nil {
			logging.Fatal(logging.Write, "memfile: grow truncate: %v", err)
		}
		m, err := gommap.Map(mf.file.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
		if err != nil {
			logging.Fatal(logging.Memory, "memfile: re-mmap: %v", err)
		}
		mf.Map = m
	}
	copy(mf.Map[mf.Off:], p)
	mf.Off += need
	return int(need)
}

// File exposes the descriptor, needed by the pool merger to mmap-append a
// spilled worker's pool into the shared output.
func (mf *MemFile) File() *os.File { return mf.file }

// Close unmaps and closes the backing descriptor.
func (mf *MemFile) Close() {
	if err := mf.Map.UnsafeUnmap(); err != nil {
		logging.Fatal(logging.Memory, "memfile: close unmap: %v", err)
	}
	if err := mf.file.Close(); err != nil {
		logging.Fatal(logging.Close, "memfile: close: %v", err)
	}
}
