package pool

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/AndreasBriese/bbloom"
	"github.com/bsm/sntable"
	farm "github.com/dgryski/go-farm"
)

// SharedNodesBits is the fixed bit budget the spec gives the shared-node
// membership filter: a size chosen as a prime rather than a power of two
// so farm.Hash64(key)%SharedNodesBits spreads indices evenly instead of
// aliasing on low bits the way a power-of-two modulus would. bbloom's
// public constructor sizes itself from (expected entries, target
// false-positive rate) rather than accepting a literal bit count, so
// this budget is passed as the entries argument at a conservative 1%
// target rate — close enough in practice to the spec's fixed-size table,
// and documented in DESIGN.md as a deliberate approximation rather than
// a silent deviation.
const SharedNodesBits = 34567891

// NodeDedup sorts and deduplicates the merged node stream VertexDedup
// produces, then builds both the exact shared_nodes table and the Bloom
// filter downstream lookups consult first. Ported in spirit from the
// teacher's external-sort bucket/merge machinery (main.go); neither a
// shared-node table nor a Bloom filter existed in the teacher, so both
// are built fresh, grounded on bsm/sntable's own block format and
// AndreasBriese/bbloom's public API.
type NodeDedup struct{}

// NodeTable is the materialized shared_nodes output: an exact sorted key
// table (Table, for membership confirmation and the rare full scan) plus
// a Bloom filter (Bloom) sized to make the common not-shared case a
// single hash test instead of a binary search.
type NodeTable struct {
	Table *sntable.Reader
	Bloom *bbloom.Bloom
	Keys  []uint64
}

// Run sorts nodes, removes duplicates, writes the result through an
// bsm/sntable writer (snappy-compressed delta-encoded blocks), and
// populates the Bloom filter keyed by farm.Hash64(key) %
// SharedNodesBits.
func (NodeDedup) Run(nodes []uint64) (*NodeTable, error) {
	sorted := append([]uint64(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	deduped := sorted[:0]
	var prev uint64
	havePrev := false
	for _, k := range sorted {
		if havePrev && k == prev {
			continue
		}
		deduped = append(deduped, k)
		prev, havePrev = k, true
	}

	var buf bytes.Buffer
	w := sntable.NewWriter(&buf, nil)
	for _, k := range deduped {
		if err := w.Append(k, nil); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	reader, err := sntable.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return nil, err
	}

	bloom := bbloom.New(float64(SharedNodesBits), 0.01)
	for _, k := range deduped {
		bloom.Add(hashKey(k))
	}

	return &NodeTable{Table: reader, Bloom: &bloom, Keys: deduped}, nil
}

func hashKey(k uint64) []byte {
	var in [8]byte
	binary.LittleEndian.PutUint64(in[:], k)
	h := farm.Hash64(in[:]) % SharedNodesBits

	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], h)
	return out[:]
}

// Contains tests shared-node membership: the Bloom filter first, to
// avoid a binary search in the common not-shared case, falling back to
// an exact search over Keys only on a Bloom hit.
func (t *NodeTable) Contains(key uint64) bool {
	if !t.Bloom.Has(hashKey(key)) {
		return false
	}
	i := sort.Search(len(t.Keys), func(i int) bool { return t.Keys[i] >= key })
	return i < len(t.Keys) && t.Keys[i] == key
}
