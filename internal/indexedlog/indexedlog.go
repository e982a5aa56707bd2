// Package indexedlog implements the Indexed Log: the adapter that layers a
// Sparse Index over a Byte Source, filling gaps on demand with
// deadline-bounded work as lines are requested.
package indexedlog

import (
	"io"
	"time"

	"github.com/alienxp03/pagelog/internal/source"
	"github.com/alienxp03/pagelog/internal/sparseindex"
)

// LogLine is a single line read from a log: its offset and its raw bytes,
// including the trailing '\n' if one was present.
type LogLine struct {
	Offset uint64
	Bytes  []byte
}

// IndexStats reports how much of a log has been explored so far, surfaced
// to the TUI.
type IndexStats struct {
	Name         string
	BytesIndexed uint64
	BytesTotal   uint64
	LinesIndexed int
}

// Log owns one Byte Source and one Sparse Index, and services line reads by
// resolving gaps as needed. It is not safe for concurrent use: a Log
// belongs to exactly one single-threaded caller.
type Log struct {
	src source.Source
	ix  *sparseindex.Index

	deadline *time.Time
	timedOut bool
}

// New wraps src in a fresh, empty Indexed Log.
func New(src source.Source) *Log {
	return &Log{src: src, ix: sparseindex.New()}
}

// Len returns the Byte Source's current logical length.
func (l *Log) Len() uint64 { return l.src.Len() }

// SetTimeout installs a deadline d from now for subsequent gap-resolving
// calls. A zero d clears the deadline (and the sticky timed-out flag).
func (l *Log) SetTimeout(d time.Duration) {
	if d <= 0 {
		l.deadline = nil
		l.timedOut = false
		return
	}
	dl := time.Now().Add(d)
	l.deadline = &dl
}

// TimedOut reports whether the most recent gap-resolving call expired its
// deadline. It stays set until SetTimeout(0) clears it.
func (l *Log) TimedOut() bool { return l.timedOut }

func (l *Log) deadlineExpired() bool {
	return l.deadline != nil && time.Now().After(*l.deadline)
}

// Info reports the current exploration state of the index.
func (l *Log) Info() IndexStats {
	stats := IndexStats{Name: l.src.Name(), BytesTotal: l.src.Len()}
	for i := 0; i < l.ix.Len(); i++ {
		w := l.ix.At(i)
		if w.Kind == sparseindex.Mapped && l.ix.SpanEnd(i) > w.Start {
			stats.BytesIndexed += l.ix.SpanEnd(i) - w.Start
			stats.LinesIndexed++
		}
	}
	return stats
}

// ReadLine returns the bytes of the line whose Mapped range contains
// offset. It never mutates the index: offset must already be covered by a
// Mapped waypoint (established via Next/NextBack/ResolveGaps). It returns
// nil if offset >= Len().
func (l *Log) ReadLine(offset uint64) (*LogLine, error) {
	if offset >= l.src.Len() {
		return nil, nil
	}
	i := l.ix.Search(offset)
	w := l.ix.At(i)
	if w.Kind != sparseindex.Mapped {
		return nil, nil
	}
	return l.readRange(w.Start, l.ix.SpanEnd(i))
}

func (l *Log) readRange(start, end uint64) (*LogLine, error) {
	buf := make([]byte, end-start)
	got := uint64(0)
	for got < uint64(len(buf)) {
		n, err := l.src.ReadAt(buf[got:], start+got)
		got += uint64(n)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return &LogLine{Offset: start, Bytes: buf[:got]}, nil
}

// Next advances one line forward from pos: if pos lands in a Mapped
// waypoint, that line is returned with the position bound to it (passing
// that position back in moves past the line); if it lands in an Unmapped
// waypoint, the gap is resolved and the attempt retried. A nil line with a
// non-invalid position signals that the deadline expired or that a read
// made no progress (e.g. a blocked stream); resume later with the returned
// position.
func (l *Log) Next(pos sparseindex.Position) (sparseindex.Position, *LogLine, error) {
	cur := pos
	for {
		if l.deadlineExpired() {
			l.timedOut = true
			return sparseindex.AtOffset(cur.LeastOffset()), nil, nil
		}

		cur = cur.Next(l.ix)
		if cur.IsInvalid() {
			return cur, nil, nil
		}
		if cur.IsMapped() {
			w := cur.Waypoint()
			line, err := l.readRange(w.Start, w.End)
			if err != nil {
				return cur, nil, err
			}
			return cur, line, nil
		}

		w := cur.Waypoint()
		target := cur.Offset()
		if target < w.Start || target >= w.End {
			target = w.Start
		}
		if target >= l.src.Len() {
			return sparseindex.Invalid(), nil, nil
		}
		// Always anchor the read at w.Start, the gap's genuine left
		// boundary: a read starting anywhere else can't know whether it
		// landed mid-line, so it would leave the first line in the
		// window unresolved. target only bounds how far the read needs
		// to get before target's own line is covered.
		if err := l.resolveForward(w.Start, target); err != nil {
			return cur, nil, err
		}
		if l.ix.At(l.ix.Search(target)) == w {
			// No progress was made (e.g. a blocked stream): stop here
			// rather than spin; caller may Poll and retry.
			return sparseindex.AtOffset(target), nil, nil
		}
		cur = sparseindex.AtOffset(target)
	}
}

// NextBack is the symmetric reverse of Next.
func (l *Log) NextBack(pos sparseindex.Position) (sparseindex.Position, *LogLine, error) {
	cur := pos
	for {
		if l.deadlineExpired() {
			l.timedOut = true
			return sparseindex.AtOffset(cur.MostOffset()), nil, nil
		}

		cur = cur.NextBack(l.ix)
		if cur.IsInvalid() {
			return cur, nil, nil
		}
		if cur.IsMapped() {
			w := cur.Waypoint()
			line, err := l.readRange(w.Start, w.End)
			if err != nil {
				return cur, nil, err
			}
			return cur, line, nil
		}

		w := cur.Waypoint()
		target := cur.Offset()
		if target <= w.Start || target > w.End {
			target = w.End
		}
		// Always anchor the scan at the gap's genuine right boundary
		// (clamped to the source's current length, since an unexplored
		// gap's End may be the open Infinity sentinel), so the window
		// always includes the real newline terminating the line we
		// want rather than stopping one byte short of it.
		anchorEnd := w.End
		if srcLen := l.src.Len(); anchorEnd > srcLen {
			anchorEnd = srcLen
		}
		if anchorEnd <= w.Start {
			// The gap lies wholly at or beyond the source's end: step
			// back past it.
			continue
		}
		if err := l.resolveBackward(anchorEnd, w.Start); err != nil {
			return cur, nil, err
		}
		retryAt := target
		if retryAt > 0 {
			retryAt--
		}
		if l.ix.At(l.ix.Search(retryAt)) == w {
			return sparseindex.AtOffset(target), nil, nil
		}
		cur = sparseindex.AtOffset(retryAt)
	}
}

// LineIter is a double-ended iterator over the lines of a byte range,
// returned by IterLinesRange. It holds one forward and one backward cursor,
// both plain values; the iterator is exhausted once the two meet or cross.
// Lines partially overlapping the range's edges are included.
type LineIter struct {
	log *Log

	fwd  sparseindex.Position
	back sparseindex.Position

	// lo/hi shrink toward each other as lines are taken from either end.
	lo, hi uint64
}

// IterLinesRange returns a double-ended iterator over the lines overlapping
// [start, end). An end at or beyond Len() is clamped, so (0, Len()) walks
// the whole log. Gap resolution (and the log's deadline) applies to the
// iterator's Next/NextBack calls exactly as to the log's own.
func (l *Log) IterLinesRange(start, end uint64) *LineIter {
	if srcLen := l.src.Len(); end > srcLen {
		end = srcLen
	}
	if start > end {
		start = end
	}
	return &LineIter{
		log:  l,
		fwd:  sparseindex.AtOffset(start),
		back: sparseindex.AtOffset(end),
		lo:   start,
		hi:   end,
	}
}

// Next returns the next line from the front of the range, or nil once the
// cursors have met or the deadline expired (distinguish via TimedOut).
func (it *LineIter) Next() (*LogLine, error) {
	if it.lo >= it.hi {
		return nil, nil
	}
	next, line, err := it.log.Next(it.fwd)
	it.fwd = next
	if err != nil || line == nil {
		return nil, err
	}
	if line.Offset >= it.hi {
		it.lo = it.hi
		return nil, nil
	}
	it.lo = line.Offset + uint64(len(line.Bytes))
	return line, nil
}

// NextBack returns the next line from the back of the range.
func (it *LineIter) NextBack() (*LogLine, error) {
	if it.lo >= it.hi {
		return nil, nil
	}
	next, line, err := it.log.NextBack(it.back)
	it.back = next
	if err == nil && line != nil && line.Offset >= it.hi {
		// The cursor started on the line beginning at hi, which lies
		// outside the range: step past it.
		next, line, err = it.log.NextBack(it.back)
		it.back = next
	}
	if err != nil || line == nil {
		return nil, err
	}
	if line.Offset+uint64(len(line.Bytes)) <= it.lo {
		it.hi = it.lo
		return nil, nil
	}
	it.hi = line.Offset
	return line, nil
}

// ResolveGaps repeatedly resolves gaps starting at pos until either no
// gaps remain in [pos, Len()) or the deadline expires, returning a
// resumption position.
func (l *Log) ResolveGaps(pos sparseindex.Position) sparseindex.Position {
	cur := pos
	for {
		if l.deadlineExpired() {
			l.timedOut = true
			return sparseindex.AtOffset(cur.LeastOffset())
		}
		next, line, err := l.Next(cur)
		if err != nil || line == nil {
			return next
		}
		cur = next
	}
}

// resolveForward performs forward gap resolution. It always reads starting
// at anchor, the gap's genuine left boundary (either byte 0 or the end of
// the previous line), so every chunk handed to ParseChunk can be merged
// into the index without losing a line to an unknown leading fragment; it
// keeps reading successive chunks, merging every line start discovered into
// the index, until want's line has become Mapped, the gap is exhausted, or
// a read makes no further progress (e.g. a blocked stream).
func (l *Log) resolveForward(anchor, want uint64) error {
	cursor := anchor
	for {
		i := l.ix.Search(cursor)
		w := l.ix.At(i)
		if w.Kind != sparseindex.Unmapped {
			return nil
		}

		cs, ce := l.src.ChunkHint(cursor)
		if cs < w.Start {
			cs = w.Start
		}
		if ce > w.End {
			ce = w.End
		}
		if ce <= cs {
			ce = w.End
		}
		if ce <= cs {
			return nil
		}

		buf := make([]byte, ce-cs)
		n, err := l.src.ReadAt(buf, cs)
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 {
			return nil
		}

		l.ix.ParseChunk(cs, buf[:n])
		cursor = cs + uint64(n)
		if want < cursor {
			return nil
		}
	}
}

// resolveBackward performs backward gap resolution for the Unmapped
// waypoint bounded by [floor, anchorEnd): the doubling-delta scan
// that finds the line(s) immediately preceding anchorEnd without a cheap
// way to know where they start. anchorEnd is always the gap's genuine
// right boundary (clamped to the source's current length), so the window
// always includes the real newline terminating the last line in range;
// floor is the gap's genuine left boundary, and is itself always a real
// line start (byte 0, or the end of the preceding mapped line), so once
// the scan widens all the way down to it, the remaining leading fragment
// can be trusted as a complete line instead of discarded.
func (l *Log) resolveBackward(anchorEnd, floor uint64) error {
	delta := uint64(64 * 1024)
	for {
		lo := floor
		if anchorEnd > delta && anchorEnd-delta > floor {
			lo = anchorEnd - delta
		}
		width := anchorEnd - lo
		if width == 0 {
			return nil
		}

		buf := make([]byte, width)
		n, err := l.src.ReadAt(buf, lo)
		if err != nil && err != io.EOF {
			return err
		}
		data := buf[:n]

		firstNL := indexNewline(data)
		if firstNL < 0 {
			if lo == floor {
				l.ix.InsertLine(floor, anchorEnd)
				return nil
			}
			delta *= 2
			continue
		}

		lineStart := lo + uint64(firstNL) + 1
		if lo == floor {
			l.ix.InsertLine(floor, lineStart)
		}
		for i := firstNL + 1; i < len(data); i++ {
			if data[i] != '\n' {
				continue
			}
			end := lo + uint64(i) + 1
			l.ix.InsertLine(lineStart, end)
			lineStart = end
		}
		return nil
	}
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}
