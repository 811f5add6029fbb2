package stringpool

import (
	"os"

	"github.com/tilercore/pipeline/internal/logging"
	"github.com/tilercore/pipeline/internal/tempstore"
)

// Merge concatenates each worker pool's arena into a single file and
// returns, for worker i, the base offset its entries were relocated to: a
// reference written as `base[i] + localOffset` during ingest resolves
// against the merged arena once merging is done. Ported from the main
// ingest-merge loop in the source project's main() (the section that
// copies each reader's PoolMemFile into one shared pool file before
// mmap'ing it read-only for the tiling pass).
func Merge(dir string, pools []*Pool) (merged *os.File, base []int64) {
	out, err := os.CreateTemp(dir, "pool-merged.*")
	if err != nil {
		logging.Fatal(logging.Open, "stringpool: merge: create: %v", err)
	}
	if err := os.Remove(out.Name()); err != nil {
		logging.Fatal(logging.Open, "stringpool: merge: unlink: %v", err)
	}

	base = make([]int64, len(pools))
	var pos int64
	for i, p := range pools {
		if p.arena.Off > 0 {
			n, err := out.Write(p.arena.Map[:p.arena.Off])
			if err != nil {
				logging.Fatal(logging.Write, "stringpool: merge: write: %v", err)
			}
			if int64(n) != p.arena.Off {
				logging.Fatal(logging.Write, "stringpool: merge: short write %d/%d", n, p.arena.Off)
			}
		}
		base[i] = pos
		pos += p.arena.Off
	}
	return out, base
}

// OpenMerged mmaps a merged arena read-only, for the rewrite/tiling pass
// that only ever looks entries up by (base[i] + localOffset).
func OpenMerged(f *os.File) *tempstore.MappedRegion {
	return tempstore.Mmap(f, tempstore.AdviceRandom)
}
