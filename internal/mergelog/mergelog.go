// Package mergelog implements the Merged Log: a k-way bidirectional merge
// over several line sources, exposing a single bidirectional line stream.
// Comparison is lexicographic on line bytes; timestamp-based ordering is an
// open question, carried here rather than resolved.
package mergelog

import (
	"bytes"
	"time"

	"github.com/alienxp03/pagelog/internal/indexedlog"
	"github.com/alienxp03/pagelog/internal/sparseindex"
)

// Source is the capability a merge member must provide: the subset of
// indexedlog.Log/filter.Overlay's bidirectional-iterator interface the
// merger drives. LogSource and FilterSource adapt the two concrete
// Indexed-Log-shaped types the rest of the core provides.
type Source interface {
	Next(pos sparseindex.Position) (sparseindex.Position, *Line, error)
	NextBack(pos sparseindex.Position) (sparseindex.Position, *Line, error)
}

// Line is the minimal shape mergelog needs from an underlying line: offset
// plus bytes.
type Line struct {
	Offset uint64
	Bytes  []byte
}

func fromLogLine(l *indexedlog.LogLine) *Line {
	if l == nil {
		return nil
	}
	return &Line{Offset: l.Offset, Bytes: l.Bytes}
}

// LogSource adapts *indexedlog.Log to the Source interface.
type LogSource struct{ Log *indexedlog.Log }

func (s LogSource) Next(pos sparseindex.Position) (sparseindex.Position, *Line, error) {
	next, line, err := s.Log.Next(pos)
	return next, fromLogLine(line), err
}

func (s LogSource) NextBack(pos sparseindex.Position) (sparseindex.Position, *Line, error) {
	next, line, err := s.Log.NextBack(pos)
	return next, fromLogLine(line), err
}

// overlay is the subset of *filter.Overlay's interface FilterSource needs;
// declared locally so this package does not import internal/filter (which
// already imports internal/indexedlog, and need not also import mergelog).
type overlay interface {
	Next(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error)
	NextBack(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error)
}

// FilterSource adapts a *filter.Overlay to the Source interface.
type FilterSource struct{ Overlay overlay }

func (s FilterSource) Next(pos sparseindex.Position) (sparseindex.Position, *Line, error) {
	next, line, err := s.Overlay.Next(pos)
	return next, fromLogLine(line), err
}

func (s FilterSource) NextBack(pos sparseindex.Position) (sparseindex.Position, *Line, error) {
	next, line, err := s.Overlay.NextBack(pos)
	return next, fromLogLine(line), err
}

// member tracks one merge input's state: its own forward/backward cursors
// plus one-slot peek buffers in each direction.
type member struct {
	name string
	src  Source

	fwdPos  sparseindex.Position
	backPos sparseindex.Position

	fwdPeek  *Line
	backPeek *Line

	fwdDone  bool
	backDone bool
}

// Merged is the k-way bidirectional merge iterator over several line
// sources. It is not safe for concurrent use and holds no resources of its
// own beyond its members' cursors: it borrows its children for the
// duration of the merge.
type Merged struct {
	members []*member

	deadline *time.Time
	timedOut bool
}

// Entry is one line returned by the merge, tagged with the source name it
// came from (surfaced by the TUI as a per-line source label).
type Entry struct {
	Source string
	Line   Line
}

// New builds a Merged log over the given named sources. Order of names
// matters only for stable tie-breaking when two sources produce
// byte-identical lines: earlier sources win ties.
func New(names []string, srcs []Source) *Merged {
	members := make([]*member, len(srcs))
	for i, s := range srcs {
		members[i] = &member{
			name:    names[i],
			src:     s,
			fwdPos:  sparseindex.Start(),
			backPos: sparseindex.End(),
		}
	}
	return &Merged{members: members}
}

// Seek repositions every member's forward and backward cursor to offset,
// discarding any buffered peeks. It is used by a windowed-scrolling caller
// (a pager) that wants to re-render a range starting at an arbitrary byte
// offset rather than replay the whole merge from the beginning; a Position
// degrades to Virtual(Offset(target)) and re-resolves deterministically, so
// this is always safe to call.
func (m *Merged) Seek(offset uint64) {
	for _, mb := range m.members {
		mb.fwdPos = sparseindex.AtOffset(offset)
		mb.backPos = sparseindex.AtOffset(offset)
		mb.fwdPeek, mb.backPeek = nil, nil
		mb.fwdDone, mb.backDone = false, false
	}
}

// SetTimeout installs a deadline d from now for subsequent Next/NextBack
// calls, matching indexedlog.Log.SetTimeout.
func (m *Merged) SetTimeout(d time.Duration) {
	if d <= 0 {
		m.deadline = nil
		m.timedOut = false
		return
	}
	dl := time.Now().Add(d)
	m.deadline = &dl
}

// TimedOut reports whether the most recent call expired its deadline.
func (m *Merged) TimedOut() bool { return m.timedOut }

func (m *Merged) deadlineExpired() bool {
	return m.deadline != nil && time.Now().After(*m.deadline)
}

// fillForward ensures mb has a forward peek, pulling from its source and
// falling back to its backward peek if the forward stream is exhausted.
// Forward and backward peeks may cross within a single source, and the
// merger substitutes the backward peek as the next forward value so
// draining stays clean.
func (mb *member) fillForward() (bool, error) {
	if mb.fwdPeek != nil {
		return true, nil
	}
	if mb.backPeek != nil {
		mb.fwdPeek, mb.backPeek = mb.backPeek, nil
		mb.fwdDone, mb.backDone = mb.backDone, mb.fwdDone
		return true, nil
	}
	if mb.fwdDone {
		return false, nil
	}
	next, line, err := mb.src.Next(mb.fwdPos)
	if err != nil {
		return false, err
	}
	mb.fwdPos = next
	if line == nil {
		if !next.IsInvalid() {
			// Deadline expired mid-source; report no progress, not done.
			return false, nil
		}
		mb.fwdDone = true
		return false, nil
	}
	mb.fwdPeek = line
	return true, nil
}

func (mb *member) fillBackward() (bool, error) {
	if mb.backPeek != nil {
		return true, nil
	}
	if mb.fwdPeek != nil {
		mb.backPeek, mb.fwdPeek = mb.fwdPeek, nil
		mb.backDone, mb.fwdDone = mb.fwdDone, mb.backDone
		return true, nil
	}
	if mb.backDone {
		return false, nil
	}
	next, line, err := mb.src.NextBack(mb.backPos)
	if err != nil {
		return false, err
	}
	mb.backPos = next
	if line == nil {
		if !next.IsInvalid() {
			return false, nil
		}
		mb.backDone = true
		return false, nil
	}
	mb.backPeek = line
	return true, nil
}

// Next returns the lexicographically smallest peeked line across all
// members, advancing that member. Returns (nil, false, nil) when every
// member is exhausted, and (nil, true, nil) if the deadline expired with
// work still pending (callers should retry with a fresh deadline).
func (m *Merged) Next() (*Entry, bool, error) {
	if m.deadlineExpired() {
		m.timedOut = true
		return nil, true, nil
	}

	var best *member
	for _, mb := range m.members {
		ok, err := mb.fillForward()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if best == nil || bytes.Compare(mb.fwdPeek.Bytes, best.fwdPeek.Bytes) < 0 {
			best = mb
		}
	}
	if best == nil {
		// Either every member is exhausted, or one is merely blocked
		// (e.g. a stream mid-read): either way there is nothing to
		// return right now; the caller polls and retries.
		return nil, false, nil
	}
	line := *best.fwdPeek
	best.fwdPeek = nil
	return &Entry{Source: best.name, Line: line}, false, nil
}

// NextBack is the symmetric reverse of Next, selecting the lexicographically
// largest peeked line.
func (m *Merged) NextBack() (*Entry, bool, error) {
	if m.deadlineExpired() {
		m.timedOut = true
		return nil, true, nil
	}

	var best *member
	for _, mb := range m.members {
		ok, err := mb.fillBackward()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if best == nil || bytes.Compare(mb.backPeek.Bytes, best.backPeek.Bytes) > 0 {
			best = mb
		}
	}
	if best == nil {
		return nil, false, nil
	}
	line := *best.backPeek
	best.backPeek = nil
	return &Entry{Source: best.name, Line: line}, false, nil
}
