package tempstore_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/tilercore/pipeline/internal/tempstore"
)

func TestTempStoreUnlinkedOnCreate(t *testing.T) {
	dir := t.TempDir()
	ts := tempstore.Create(dir, "geom.*")
	defer ts.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the temp file to be unlinked immediately, found %v", entries)
	}
}

func TestTempStoreAppendReturnsPreWriteOffset(t *testing.T) {
	ts := tempstore.Create(t.TempDir(), "geom.*")
	defer ts.Close()

	off1 := ts.Append([]byte("abc"))
	off2 := ts.Append([]byte("de"))

	if off1 != 0 {
		t.Fatalf("first append offset = %d, want 0", off1)
	}
	if off2 != 3 {
		t.Fatalf("second append offset = %d, want 3", off2)
	}
	if ts.Pos() != 5 {
		t.Fatalf("Pos() = %d, want 5", ts.Pos())
	}
}

func TestTempStoreMmapRoundTrip(t *testing.T) {
	ts := tempstore.Create(t.TempDir(), "geom.*")
	want := []byte("the quick brown fox")
	ts.Append(want)

	region := tempstore.Mmap(ts.File(), tempstore.AdviceSequential)
	defer region.Close()

	if !bytes.Equal(region.Bytes[:len(want)], want) {
		t.Fatalf("mmap region = %q, want %q", region.Bytes[:len(want)], want)
	}
	ts.Close()
}

func TestMemFileGrowsPastInitialBuffer(t *testing.T) {
	mf := tempstore.OpenMemFile(t.TempDir(), "pool.*")
	defer mf.Close()

	big := bytes.Repeat([]byte{'x'}, 1<<20) // force at least one grow step
	n := mf.Write(big)
	if n != len(big) {
		t.Fatalf("Write returned %d, want %d", n, len(big))
	}
	if mf.Off != int64(len(big)) {
		t.Fatalf("Off = %d, want %d", mf.Off, len(big))
	}
	if mf.Len < mf.Off {
		t.Fatalf("Len %d smaller than Off %d after growth", mf.Len, mf.Off)
	}
	if !bytes.Equal(mf.Map[:len(big)], big) {
		t.Fatalf("memfile contents mismatch after growth")
	}
}
