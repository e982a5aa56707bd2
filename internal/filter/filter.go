// Package filter implements the Filter Overlay: a second Sparse Index,
// driven by a regex predicate over an underlying Indexed Log, that produces
// a filtered, still-lazy line stream while preserving the bidirectional
// cursor contract.
package filter

import (
	"fmt"
	"regexp"
	"time"

	"github.com/alienxp03/pagelog/internal/indexedlog"
	"github.com/alienxp03/pagelog/internal/sparseindex"
)

// Mode selects how a Pattern's match result maps to keep/drop.
type Mode int

const (
	// Include keeps lines that match the pattern.
	Include Mode = iota
	// Exclude drops lines that match the pattern.
	Exclude
)

// Pattern is a compiled regex predicate plus its keep/drop mode. An empty
// pattern string compiles to a disabled predicate that matches every line,
// regardless of mode.
type Pattern struct {
	mode Mode
	re   *regexp.Regexp
}

// InvalidRegexError reports a filter construction error: the new filter is
// rejected and the caller keeps whatever filter (or none) was previously in
// effect.
type InvalidRegexError struct {
	Pattern string
	Detail  string
}

func (e *InvalidRegexError) Error() string {
	return fmt.Sprintf("filter: invalid regex %q: %s", e.Pattern, e.Detail)
}

// NewPattern compiles expr under mode. An empty expr is accepted and
// compiles to the disabled predicate.
func NewPattern(mode Mode, expr string) (*Pattern, error) {
	if expr == "" {
		return &Pattern{mode: mode, re: nil}, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &InvalidRegexError{Pattern: expr, Detail: err.Error()}
	}
	return &Pattern{mode: mode, re: re}, nil
}

// Match reports whether line (without its trailing '\n') should be kept. An
// empty/nil pattern is disabled and keeps everything, regardless of mode.
func (p *Pattern) Match(lineBytes []byte) bool {
	if p == nil || p.re == nil {
		return true
	}
	if n := len(lineBytes); n > 0 && lineBytes[n-1] == '\n' {
		lineBytes = lineBytes[:n-1]
	}
	matched := p.re.Match(lineBytes)
	if p.mode == Include {
		return matched
	}
	return !matched
}

// Underlying is the capability a Filter Overlay needs from whatever it
// wraps: an Indexed Log, or another Filter Overlay. Both *indexedlog.Log
// and *Overlay itself satisfy this, so overlays may stack over one base
// log without the Overlay type needing to know which it has.
type Underlying interface {
	Next(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error)
	NextBack(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error)
	ReadLine(offset uint64) (*indexedlog.LogLine, error)
	Len() uint64
	Info() indexedlog.IndexStats
	SetTimeout(d time.Duration)
	TimedOut() bool
}

// Overlay wraps an Underlying (Indexed Log, or another Filter Overlay) with
// a predicate, maintaining its own Sparse Index (the filter index). It is
// not safe for concurrent use, matching whatever it wraps.
type Overlay struct {
	under Underlying
	pred  *Pattern
	ix    *sparseindex.Index

	// innerFwd/innerBack track how far the underlying log has been
	// consumed forward/backward while filling the filter index, so that
	// re-entrant find_next/find_prev calls resume rather than rescan.
	innerFwd  sparseindex.Position
	innerBack sparseindex.Position

	deadline *time.Time
	timedOut bool
}

// New wraps under with pred, starting from an empty filter index.
func New(under Underlying, pred *Pattern) *Overlay {
	return &Overlay{
		under:     under,
		pred:      pred,
		ix:        sparseindex.New(),
		innerFwd:  sparseindex.Start(),
		innerBack: sparseindex.End(),
	}
}

// SetPredicate installs a new predicate and resets the filter index: a
// changed predicate invalidates every prior Mapped/erased conclusion, so
// the overlay must re-examine the underlying log from scratch.
func (o *Overlay) SetPredicate(pred *Pattern) {
	o.pred = pred
	o.ix = sparseindex.New()
	o.innerFwd = sparseindex.Start()
	o.innerBack = sparseindex.End()
}

// SetTimeout installs a deadline d from now for subsequent gap-resolving
// calls, matching indexedlog.Log.SetTimeout.
func (o *Overlay) SetTimeout(d time.Duration) {
	if d <= 0 {
		o.deadline = nil
		o.timedOut = false
		return
	}
	dl := time.Now().Add(d)
	o.deadline = &dl
}

// TimedOut reports whether the most recent call expired its deadline.
func (o *Overlay) TimedOut() bool { return o.timedOut }

func (o *Overlay) deadlineExpired() bool {
	return o.deadline != nil && time.Now().After(*o.deadline)
}

// Len delegates to the underlying log: the filter never shrinks the
// addressable byte range, only the set of lines presented.
func (o *Overlay) Len() uint64 { return o.under.Len() }

// Info reports the filter index's own exploration stats: BytesIndexed
// counts bytes of the underlying log the filter has conclusively resolved
// (kept or dropped), not bytes matched.
func (o *Overlay) Info() indexedlog.IndexStats {
	total := o.under.Len()
	stats := indexedlog.IndexStats{Name: o.under.Info().Name, BytesTotal: total, BytesIndexed: total}
	for i := 0; i < o.ix.Len(); i++ {
		w := o.ix.At(i)
		if w.Kind == sparseindex.Mapped {
			stats.LinesIndexed++
		} else if w.Start < total {
			// Every byte below total that no Unmapped gap still covers
			// has been resolved.
			stats.BytesIndexed -= min(w.End, total) - w.Start
		}
	}
	return stats
}

// ReadLine returns the underlying line at offset verbatim, without
// consulting or mutating the filter index — mirrors indexedlog.Log.ReadLine
// for a caller that already holds a Mapped position.
func (o *Overlay) ReadLine(offset uint64) (*indexedlog.LogLine, error) {
	return o.under.ReadLine(offset)
}

// Next advances one line forward in filter-index space: if pos resolves
// onto a Mapped waypoint in the filter index, that line is returned
// verbatim; if it lands on Unmapped, the underlying log is consumed until a
// matching line is found (and recorded), a non-matching line is found (and
// erased), or the gap's end is reached (erased wholesale) or the deadline
// expires.
func (o *Overlay) Next(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error) {
	cur := pos
	for {
		if o.deadlineExpired() {
			o.timedOut = true
			return sparseindex.AtOffset(cur.LeastOffset()), nil, nil
		}

		cur = cur.Next(o.ix)
		if cur.IsInvalid() {
			return cur, nil, nil
		}
		if cur.IsMapped() {
			w := cur.Waypoint()
			line, err := o.under.ReadLine(w.Start)
			if err != nil {
				return cur, nil, err
			}
			if line != nil && !o.pred.Match(line.Bytes) {
				// A boundary marker InsertLine left at a kept line's end,
				// spanning erased lines: step over it.
				continue
			}
			return cur, line, nil
		}

		w := cur.Waypoint()
		gapEnd := w.End
		if gapEnd > o.under.Len() {
			gapEnd = o.under.Len()
		}
		if w.Start >= gapEnd {
			return sparseindex.Invalid(), nil, nil
		}

		if o.innerFwd.LeastOffset() < w.Start {
			o.innerFwd = sparseindex.AtOffset(w.Start)
		}

		scanned := w.Start
		found := false
		for {
			next, line, err := o.under.Next(o.innerFwd)
			if err != nil {
				return cur, nil, err
			}
			if line == nil {
				if o.under.TimedOut() {
					o.timedOut = true
					return sparseindex.AtOffset(scanned), nil, nil
				}
				// Underlying exhausted (or blocked) at or before gapEnd.
				if scanned < gapEnd {
					o.ix.EraseGap(scanned, gapEnd)
				}
				o.innerFwd = next
				break
			}
			o.innerFwd = next
			lineEnd := line.Offset + uint64(len(line.Bytes))
			if line.Offset >= gapEnd {
				if scanned < gapEnd {
					o.ix.EraseGap(scanned, gapEnd)
				}
				break
			}
			if o.pred.Match(line.Bytes) {
				if scanned < line.Offset {
					o.ix.EraseGap(scanned, line.Offset)
				}
				o.ix.InsertLine(line.Offset, lineEnd)
				found = true
				scanned = lineEnd
				break
			}
			o.ix.EraseGap(scanned, lineEnd)
			scanned = lineEnd
		}

		if found {
			cur = sparseindex.AtOffset(w.Start)
			continue
		}
		if o.timedOut {
			return sparseindex.AtOffset(scanned), nil, nil
		}
		// No match discovered yet in [w.Start, scanned); loop to resolve
		// whatever remains of the gap (possibly shrunk by the erases above).
		cur = sparseindex.AtOffset(scanned)
	}
}

// NextBack is the symmetric reverse of Next, using the underlying log's
// NextBack and erasing from the gap's right edge inward.
func (o *Overlay) NextBack(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error) {
	cur := pos
	for {
		if o.deadlineExpired() {
			o.timedOut = true
			return sparseindex.AtOffset(cur.MostOffset()), nil, nil
		}

		cur = cur.NextBack(o.ix)
		if cur.IsInvalid() {
			return cur, nil, nil
		}
		if cur.IsMapped() {
			w := cur.Waypoint()
			line, err := o.under.ReadLine(w.Start)
			if err != nil {
				return cur, nil, err
			}
			if line != nil && !o.pred.Match(line.Bytes) {
				continue
			}
			return cur, line, nil
		}

		w := cur.Waypoint()
		gapEnd := w.End
		if gapEnd > o.under.Len() {
			gapEnd = o.under.Len()
		}
		if w.Start >= gapEnd {
			continue
		}

		if o.innerBack.MostOffset() > gapEnd {
			o.innerBack = sparseindex.AtOffset(gapEnd - 1)
		}

		scanned := gapEnd
		found := false
		for {
			next, line, err := o.under.NextBack(o.innerBack)
			if err != nil {
				return cur, nil, err
			}
			if line == nil {
				if o.under.TimedOut() {
					o.timedOut = true
					return sparseindex.AtOffset(scanned), nil, nil
				}
				if w.Start < scanned {
					o.ix.EraseGap(w.Start, scanned)
				}
				o.innerBack = next
				break
			}
			o.innerBack = next
			if line.Offset < w.Start {
				if w.Start < scanned {
					o.ix.EraseGap(w.Start, scanned)
				}
				break
			}
			lineEnd := line.Offset + uint64(len(line.Bytes))
			if o.pred.Match(line.Bytes) {
				if lineEnd < scanned {
					o.ix.EraseGap(lineEnd, scanned)
				}
				o.ix.InsertLine(line.Offset, lineEnd)
				found = true
				scanned = line.Offset
				break
			}
			o.ix.EraseGap(line.Offset, lineEnd)
			scanned = line.Offset
		}

		if found {
			cur = sparseindex.AtOffset(scanned)
			continue
		}
		if o.timedOut {
			return sparseindex.AtOffset(scanned), nil, nil
		}
		if w.Start == 0 {
			return sparseindex.Invalid(), nil, nil
		}
		cur = sparseindex.AtOffset(w.Start - 1)
	}
}

// ResolveGaps repeatedly resolves gaps starting at pos until either no gaps
// remain in the filter index over [pos, Len()) or the deadline expires.
func (o *Overlay) ResolveGaps(pos sparseindex.Position) sparseindex.Position {
	cur := pos
	for {
		if o.deadlineExpired() {
			o.timedOut = true
			return sparseindex.AtOffset(cur.LeastOffset())
		}
		next, line, err := o.Next(cur)
		if err != nil || line == nil {
			return next
		}
		cur = next
	}
}
