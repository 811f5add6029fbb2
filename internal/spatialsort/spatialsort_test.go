package spatialsort_test

import (
	"math/rand"
	"testing"

	"github.com/tilercore/pipeline/internal/droppolicy"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/spatialsort"
)

func TestSortProducesAscendingKeys(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	entries := make([]feature.IndexEntry, 5000)
	for i := range entries {
		entries[i] = feature.IndexEntry{
			Key:  rng.Uint64(),
			Seq:  int64(i),
			Type: feature.Point,
		}
	}

	policy := droppolicy.Policy{Maxzoom: 4, Basezoom: 2, Droprate: 2.5}
	out := spatialsort.Sort(entries, policy)

	if len(out) != len(entries) {
		t.Fatalf("expected %d results, got %d", len(entries), len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Key < out[i-1].Key {
			t.Fatalf("keys not ascending at %d: %d < %d", i, out[i].Key, out[i-1].Key)
		}
	}
}

func TestSortIsStableByKeyThenSeq(t *testing.T) {
	entries := []feature.IndexEntry{
		{Key: 5, Seq: 3, Type: feature.Point},
		{Key: 5, Seq: 1, Type: feature.Point},
		{Key: 5, Seq: 2, Type: feature.Point},
		{Key: 1, Seq: 9, Type: feature.Point},
	}
	policy := droppolicy.Policy{Maxzoom: 2, Basezoom: 0, Droprate: 2.0}
	out := spatialsort.Sort(entries, policy)

	wantSeqOrder := []int64{9, 1, 2, 3}
	for i, w := range wantSeqOrder {
		if out[i].Seq != w {
			t.Fatalf("position %d: seq=%d, want %d", i, out[i].Seq, w)
		}
	}
}

func TestSortOverLargeInputSplitsIntoMultipleBuckets(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 1 << 17 // force at least one radix split past maxBucketSize
	entries := make([]feature.IndexEntry, n)
	for i := range entries {
		entries[i] = feature.IndexEntry{Key: rng.Uint64(), Seq: int64(i), Type: feature.Point}
	}
	policy := droppolicy.Policy{Maxzoom: 3, Basezoom: 1, Droprate: 2.5}
	out := spatialsort.Sort(entries, policy)

	if len(out) != n {
		t.Fatalf("expected %d results, got %d", n, len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Key < out[i-1].Key {
			t.Fatalf("keys not ascending at %d", i)
		}
	}
}
