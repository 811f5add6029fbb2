package pool

import "io"

// mergeCursor walks one worker's locally-sorted vertex stream
// sequentially via ReadAt, re-filling after every record it yields to
// the merge. Ported from the teacher's MergeList node (main.go): a
// cursor is re-inserted into the ascending merge-list after each
// advance, exactly like mergeSplits re-inserting m once it has more to
// give.
type mergeCursor struct {
	r    io.ReaderAt
	off  int64
	v    Vertex
	next *mergeCursor
}

func (c *mergeCursor) fill() bool {
	buf := make([]byte, vertexSize)
	n, _ := c.r.ReadAt(buf, c.off)
	if n < vertexSize {
		return false
	}
	c.v = DecodeVertex(buf)
	c.off += vertexSize
	return true
}

// insertCursor places m into the ascending (Mid, P1, P2) merge-list
// headed by *head. Ported verbatim in structure from the teacher's
// insert/indexcmp, re-keyed to Vertex ordering.
func insertCursor(m *mergeCursor, head **mergeCursor) {
	for *head != nil && !vertexLess(m.v, (*head).v) {
		head = &(*head).next
	}
	m.next = *head
	*head = m
}

// VertexDedup merges already locally-sorted per-worker vertex streams
// and detects geometrically-shared points: whenever the same mid point
// recurs with a differing neighbour pair anywhere in its run of equal
// Mid records, that point participates in more than one vertex context
// and is emitted as one Node. Ported from the teacher's
// mergeSplits/insert/indexcmp merge-list, re-keyed from Index(ix, seq)
// to Vertex(mid, p1, p2) — the collision test itself is spec-original
// (the teacher's merge only ever computed minzoom, never node sharing).
type VertexDedup struct{}

// Run performs the k-way merge described above. streams need not all be
// the same length; each must already be sorted ascending by (Mid, P1,
// P2) within itself, the invariant the serialization workers maintain by
// construction (one worker, one monotone Mid range per segment is not
// required — only a per-stream sort is).
func (VertexDedup) Run(streams []io.ReaderAt) ([]Node, error) {
	var head *mergeCursor
	for _, s := range streams {
		c := &mergeCursor{r: s}
		if c.fill() {
			insertCursor(c, &head)
		}
	}

	var nodes []Node
	var groupMid uint64
	var groupFirst Vertex
	var groupHasMid, groupDiffers bool

	flush := func() {
		if groupHasMid && groupDiffers {
			nodes = append(nodes, Node{Index: groupMid})
		}
	}

	for head != nil {
		cur := head.v
		switch {
		case !groupHasMid || cur.Mid != groupMid:
			flush()
			groupMid = cur.Mid
			groupFirst = cur
			groupHasMid = true
			groupDiffers = false
		case cur.P1 != groupFirst.P1 || cur.P2 != groupFirst.P2:
			groupDiffers = true
		}

		m := head
		head = m.next
		m.next = nil
		if m.fill() {
			insertCursor(m, &head)
		}
	}
	flush()

	return nodes, nil
}
