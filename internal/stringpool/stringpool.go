// Package stringpool interns repeated (kind, value) pairs — attribute keys
// and attribute values — into a single growable byte arena plus a binary
// search tree of candidate offsets, so a feature with 2000 instances of the
// same "highway"/"residential" pair costs one copy instead of 2000.
//
// Ported from the source project's pool.go (StringPool/addpool/swizzlecmp),
// which builds exactly this kind of arena-plus-BST pool but keys tree nodes
// by raw unsafe.Pointer struct overlays on the mmap'd region and compares
// strings by reading to the end of the mapped buffer rather than by a
// stored length — a shortcut that only worked by accident of what
// happened to follow in the arena. This version fixes that by
// length-prefixing each arena entry (varint) so equality comparisons are
// exact, and replaces the unsafe struct overlay with explicit
// encoding/binary reads, which is both portable and avoids aliasing a Go
// struct onto raw mmap bytes.
package stringpool

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/tilercore/pipeline/internal/tempstore"
)

// node is a tree-file record: the BST child offsets, plus the offset of
// this entry's data within the byte arena. All three are offsets into
// their respective MemFile, 0 meaning "no child" (Open writes a one-byte
// sentinel at the arena's offset 0 and a zeroed sentinel node at the
// tree's offset 0, so no real entry or node ever lands there).
const nodeSize = 24 // left(8) + right(8) + arenaOff(8), little-endian

// Pool interns (kind, value) pairs for a single ingest worker. Kind
// distinguishes an attribute key from a typed attribute value so that a
// key "name" and a value "name" never collide.
type Pool struct {
	arena *tempstore.MemFile
	tree  *tempstore.MemFile
}

// Open creates a fresh pool backed by two unlinked temp files.
func Open(dir string) *Pool {
	arena := tempstore.OpenMemFile(dir, "pool-arena.*")
	tree := tempstore.OpenMemFile(dir, "pool-tree.*")
	arena.Write([]byte{0}) // burn offset 0 so it can serve as the "empty" sentinel
	// Likewise burn the tree's offset 0: a node offset of 0 means "no node".
	tree.Write(make([]byte, nodeSize))
	return &Pool{arena: arena, tree: tree}
}

// Close releases both backing MemFiles.
func (p *Pool) Close() {
	p.arena.Close()
	p.tree.Close()
}

// Arena exposes the byte pool's MemFile, needed by the merge step that
// concatenates every worker's arena into the shared output pool.
func (p *Pool) Arena() *tempstore.MemFile { return p.arena }

// maxDepth bounds the BST's walk before falling back to an unconditional
// append, mirroring the source project's `3*log2(n)` degenerate-tree guard
// so a pathologically ordered input (e.g. already-sorted attribute values)
// can't turn every Intern call into an O(n) scan.
func maxDepth(arenaOff int64) int {
	if arenaOff <= int64(nodeSize) {
		return 30
	}
	d := int(3 * math.Log(float64(arenaOff)/float64(nodeSize)) / math.Log(2))
	if d < 30 {
		return 30
	}
	return d
}

// Intern returns the arena offset of (kind, value), writing a new entry
// only if no equal (kind, value) pair has been interned yet by this pool.
// Once a walk exceeds maxDepth the entry is appended without a dedup
// check, so a degenerate tree can hold repeats.
func (p *Pool) Intern(value string, kind byte) int64 {
	sp := p.tree.Tree
	depth := 0
	limit := maxDepth(p.tree.Off)

	for sp != 0 {
		left, right, arenaOff := readNode(p.tree, sp)
		existing, existingKind := readEntry(p.arena, arenaOff)

		cmp := strings.Compare(value, existing)
		if cmp == 0 {
			cmp = int(kind) - int(existingKind)
		}
		switch {
		case cmp == 0:
			return arenaOff
		case cmp < 0:
			if left == 0 {
				return p.insertChild(sp, true, value, kind)
			}
			sp = left
		default:
			if right == 0 {
				return p.insertChild(sp, false, value, kind)
			}
			sp = right
		}

		depth++
		if depth > limit {
			return p.appendEntry(value, kind)
		}
	}

	// Empty tree: write the entry and make it the root.
	off := p.appendEntry(value, kind)
	p.tree.Tree = uint64(p.writeNode(0, 0, off))
	return off
}

// insertChild appends a new arena entry and links it as parent's left or
// right child, growing the tree file by exactly one node.
func (p *Pool) insertChild(parent uint64, left bool, value string, kind byte) int64 {
	off := p.appendEntry(value, kind)
	child := p.writeNode(0, 0, off)
	patchChild(p.tree, parent, left, child)
	return off
}

func (p *Pool) appendEntry(value string, kind byte) int64 {
	off := p.arena.Off
	hdr := make([]byte, binary.MaxVarintLen64+1)
	hdr[0] = kind
	n := binary.PutUvarint(hdr[1:], uint64(len(value)))
	p.arena.Write(hdr[:1+n])
	p.arena.Write([]byte(value))
	return off
}

func (p *Pool) writeNode(left, right uint64, arenaOff int64) int64 {
	pos := p.tree.Off
	buf := make([]byte, nodeSize)
	binary.LittleEndian.PutUint64(buf[0:8], left)
	binary.LittleEndian.PutUint64(buf[8:16], right)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(arenaOff))
	p.tree.Write(buf)
	return pos
}

func readNode(tree *tempstore.MemFile, pos uint64) (left, right uint64, arenaOff int64) {
	b := tree.Map[pos : pos+nodeSize]
	left = binary.LittleEndian.Uint64(b[0:8])
	right = binary.LittleEndian.Uint64(b[8:16])
	arenaOff = int64(binary.LittleEndian.Uint64(b[16:24]))
	return left, right, arenaOff
}

func patchChild(tree *tempstore.MemFile, parent uint64, left bool, child int64) {
	off := parent
	if !left {
		off += 8
	}
	binary.LittleEndian.PutUint64(tree.Map[off:off+8], uint64(child))
}

// ReadEntry is the public accessor the merge/rewrite stages use once the
// pool is frozen and only being read back.
func ReadEntry(arena *tempstore.MemFile, off int64) (value string, kind byte) {
	return readEntry(arena, off)
}

func readEntry(arena *tempstore.MemFile, off int64) (value string, kind byte) {
	return ReadEntryBytes(arena.Map, off)
}

// ReadEntryBytes decodes a pool entry directly from a mapped byte slice,
// used by the rewrite pass against the merged, read-only arena.
func ReadEntryBytes(arena []byte, off int64) (value string, kind byte) {
	kind = arena[off]
	length, n := binary.Uvarint(arena[off+1:])
	start := off + 1 + int64(n)
	return string(arena[start : start+int64(length)]), kind
}
