package sparseindex

import "sort"

// Index is the Sparse Index: an ordered sequence of Waypoints tiling
// [0, Infinity). It is created empty (a single Unmapped waypoint spanning
// the whole address space) and is mutated only as gaps are resolved.
type Index struct {
	wps []Waypoint
}

// New returns an empty Sparse Index: [Unmapped(0, Infinity)].
func New() *Index {
	return &Index{wps: []Waypoint{unmapped(0, Infinity)}}
}

// Len returns the number of waypoints currently tracked.
func (ix *Index) Len() int { return len(ix.wps) }

// At returns the waypoint at position i. i must be valid (0 <= i < Len()).
func (ix *Index) At(i int) Waypoint { return ix.wps[i] }

// Valid reports whether i addresses a live waypoint.
func (ix *Index) Valid(i int) bool { return i >= 0 && i < len(ix.wps) }

// IndexNext returns the waypoint index following i, if any.
func (ix *Index) IndexNext(i int) (int, bool) {
	if i+1 < len(ix.wps) {
		return i + 1, true
	}
	return 0, false
}

// IndexPrev returns the waypoint index preceding i, if any.
func (ix *Index) IndexPrev(i int) (int, bool) {
	if i > 0 {
		return i - 1, true
	}
	return 0, false
}

// SpanEnd returns the offset just past the line or gap that waypoint i
// covers. For an Unmapped waypoint this is simply its own End. A Mapped
// waypoint is a zero-width line-start marker, so its line's end is derived
// as the Start of whatever waypoint follows it — or Infinity if it is the
// last waypoint in the index.
func (ix *Index) SpanEnd(i int) uint64 {
	w := ix.wps[i]
	if w.Kind == Unmapped {
		return w.End
	}
	if next, ok := ix.IndexNext(i); ok {
		return ix.wps[next].Start
	}
	return Infinity
}

// Search returns the index of the waypoint that governs offset: the
// Unmapped gap containing it, or the Mapped marker whose derived line
// [Start, SpanEnd) contains it. An offset inside an erased span that no
// waypoint covers resolves forward to the next waypoint; an offset at or
// beyond the end of the index resolves to the final (trailing, infinite)
// waypoint.
func (ix *Index) Search(offset uint64) int {
	n := len(ix.wps)
	j := sort.Search(n, func(i int) bool { return ix.wps[i].Start > offset }) - 1
	if j < 0 {
		return 0
	}
	if w := ix.wps[j]; w.Kind == Unmapped && offset >= w.End && j+1 < n {
		return j + 1
	}
	return j
}

// search is the adjusted binary search used by the mutating operations
// below. It returns the index of the waypoint containing offset,
// or — if no waypoint contains it (offset sits exactly at an insertion
// point with nothing covering it yet) — the index a new entry for offset
// would be inserted at, which may equal len(wps).
func (ix *Index) search(offset uint64) int {
	target := mark(offset)
	n := len(ix.wps)
	i := sort.Search(n, func(i int) bool { return !less(ix.wps[i], target) })
	if i > 0 && ix.wps[i-1].Contains(offset) {
		return i - 1
	}
	if i < n && offset > ix.wps[i].Start {
		return i + 1
	}
	return i
}

// resolveGap locates the Unmapped waypoint containing [start, end) and
// splits it, removing exactly the requested span. Unlike insertMarkerAt,
// the carved-out span is left with no waypoint of its own: it represents
// bytes already scanned and confirmed to contain no further line boundary,
// not an unscanned region, so a later Search landing inside it resolves
// forward to whatever waypoint comes next.
func (ix *Index) resolveGap(start, end uint64) {
	i := ix.search(start)
	if i+1 < len(ix.wps) && ix.wps[i].Kind == Mapped {
		i++
	} else if i > 0 && ix.wps[i-1].Contains(start) {
		i--
	}
	if i >= len(ix.wps) {
		panic("sparseindex: range is not contained in an Unmapped waypoint")
	}

	um := ix.wps[i]
	if um.Kind != Unmapped {
		panic("sparseindex: range is not contained in an Unmapped waypoint")
	}
	if um.Start > start || um.End < end {
		panic("sparseindex: range escapes its Unmapped waypoint")
	}

	var repl []Waypoint
	if um.Start < start {
		repl = append(repl, unmapped(um.Start, start))
	}
	if um.End > end {
		repl = append(repl, unmapped(end, um.End))
	}
	ix.wps = spliceWaypoints(ix.wps, i, i+1, repl)
}

// insertMarkerAt records a line-start marker at offset, inserting it into
// the ordered waypoint list. A marker already present at offset is left
// alone: recording the same line start twice is a no-op, not an error.
func (ix *Index) insertMarkerAt(offset uint64) {
	i := ix.search(offset)
	if i < len(ix.wps) && ix.wps[i].Kind == Mapped && ix.wps[i].Start == offset {
		return
	}
	ix.wps = spliceWaypoints(ix.wps, i, i, []Waypoint{mark(offset)})
}

// insert resolves the gap [rangeStart, rangeEnd) — the byte span that was
// just scanned — and then records a line-start marker for every offset
// discovered within it, in ascending order. offsets need not cover the
// whole range: any sub-span between two adjacent markers (or between a
// marker and the scanned range's edges) with no marker of its own is a
// confirmed empty span, not an unresolved one.
func (ix *Index) insert(offsets []uint64, rangeStart, rangeEnd uint64) {
	if rangeEnd > rangeStart {
		ix.resolveGap(rangeStart, rangeEnd)
	}
	for _, o := range offsets {
		ix.insertMarkerAt(o)
	}
}

// InsertLine records a discovered line [start, end): a marker at start (the
// line's own beginning) and one at end (the next line's beginning, or just
// a confirmed boundary if nothing is known to follow it yet). [start, end)
// must be covered by a single existing Unmapped waypoint at the time of the
// call; callers discover lines in byte order, so a line's span is always
// still unresolved when it is reported.
func (ix *Index) InsertLine(start, end uint64) {
	if end <= start {
		return
	}
	ix.insert([]uint64{start, end}, start, end)
}

// EraseGap marks [start, end) as explored-and-empty: no line boundary
// begins inside it. Used by the Filter Overlay to record bytes it has
// scanned and rejected.
func (ix *Index) EraseGap(start, end uint64) {
	if end <= start {
		return
	}
	ix.resolveGap(start, end)
}

func spliceWaypoints(wps []Waypoint, a, b int, repl []Waypoint) []Waypoint {
	out := make([]Waypoint, 0, len(wps)-(b-a)+len(repl))
	out = append(out, wps[:a]...)
	out = append(out, repl...)
	out = append(out, wps[b:]...)
	return out
}

// ParseChunk scans chunk (read from the source at the given offset) for
// newline bytes and records a line-start marker at the byte following each
// one. offset 0 additionally marks the line implicitly starting at the
// beginning of the file — the one line start never preceded by a newline.
// A chunk that starts anywhere else cannot know whether it landed mid-line,
// so its own starting offset is never marked unless discovered some other
// way; the bytes leading up to the first newline found are simply left as
// part of whatever was already known about that span.
func (ix *Index) ParseChunk(offset uint64, chunk []byte) {
	var offsets []uint64
	for i, b := range chunk {
		if b == '\n' {
			offsets = append(offsets, offset+uint64(i)+1)
		}
	}
	if offset == 0 {
		offsets = append([]uint64{0}, offsets...)
	}
	ix.insert(offsets, offset, offset+uint64(len(chunk)))
}

// Snapshot returns a copy of all waypoints, for tests and debugging.
func (ix *Index) Snapshot() []Waypoint {
	return append([]Waypoint(nil), ix.wps...)
}
