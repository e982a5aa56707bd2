package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alienxp03/pagelog/internal/filter"
	"github.com/alienxp03/pagelog/internal/indexedlog"
	"github.com/alienxp03/pagelog/internal/mergelog"
	"github.com/alienxp03/pagelog/internal/source"
	"github.com/alienxp03/pagelog/internal/sparseindex"
)

// coreLog is the shape the TUI drives: an *indexedlog.Log or a
// *filter.Overlay, interchangeably, so both base and filtered forms
// interchange at the iterator boundary.
type coreLog interface {
	Next(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error)
	NextBack(pos sparseindex.Position) (sparseindex.Position, *indexedlog.LogLine, error)
	Len() uint64
	Info() indexedlog.IndexStats
	SetTimeout(d time.Duration)
	TimedOut() bool
}

// fileLog is one opened input: its underlying byte source, its base
// Indexed Log, and the (possibly nil) include/exclude overlays stacked on
// top of it per the current filter.
type fileLog struct {
	name    string
	src     source.Source
	base    *indexedlog.Log
	include *filter.Overlay
	exclude *filter.Overlay
}

// active returns the coreLog the TUI should actually read from: the
// innermost-to-outermost stack base <- include? <- exclude?.
func (f *fileLog) active() coreLog {
	if f.exclude != nil {
		return f.exclude
	}
	if f.include != nil {
		return f.include
	}
	return f.base
}

// setFilters (re)installs include/exclude overlays. An empty pattern
// string removes that overlay entirely rather than installing a
// filter-disabled-but-present one, so an unfiltered view pays no overlay
// overhead. Both patterns are compiled before anything is mutated: an
// invalid regex leaves the previously installed filter (or lack of one)
// in effect rather than tearing it down.
func (f *fileLog) setFilters(include, exclude string) error {
	var newInclude *filter.Overlay
	if include != "" {
		pat, err := filter.NewPattern(filter.Include, include)
		if err != nil {
			return err
		}
		newInclude = filter.New(f.base, pat)
	}

	var newExclude *filter.Overlay
	if exclude != "" {
		pat, err := filter.NewPattern(filter.Exclude, exclude)
		if err != nil {
			return err
		}
		var under filter.Underlying = f.base
		if newInclude != nil {
			under = newInclude
		}
		newExclude = filter.New(under, pat)
	}

	f.include = newInclude
	f.exclude = newExclude
	return nil
}

func (f *fileLog) close() error { return f.src.Close() }

// openInput opens path (or "-" for stdin) into a fileLog, auto-detecting a
// zstd-framed compressed file via source.DetectCompressed and falling back
// to a plain positioned read, or an unseekable stream cache for stdin/pipes.
func openInput(path string) (*fileLog, error) {
	if path == "-" {
		sc := source.OpenStream(os.Stdin, "stdin")
		return &fileLog{name: "stdin", src: sc, base: indexedlog.New(sc)}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	compressed := source.DetectCompressed(f)
	f.Close()
	if compressed {
		cs, err := source.OpenCompressedFile(path)
		if err != nil {
			return nil, err
		}
		return &fileLog{name: path, src: cs, base: indexedlog.New(cs)}, nil
	}

	pf, err := source.OpenPlainFile(path)
	if err != nil {
		return nil, err
	}
	return &fileLog{name: path, src: pf, base: indexedlog.New(pf)}, nil
}

// viewLine is one rendered line: the source file it came from (for the
// merge case) plus the underlying LogLine.
type viewLine struct {
	source string
	line   indexedlog.LogLine
}

// viewer is what the model drives to walk a window of lines, whether it is
// backed by a single file (possibly filtered) or a merge of several.
type viewer interface {
	Next() (*viewLine, error)
	NextBack() (*viewLine, error)
	Seek(offset uint64)
	Len() uint64
	SetTimeout(d time.Duration)
	TimedOut() bool
	Stats() []indexedlog.IndexStats
}

// singleViewer drives exactly one coreLog, holding its own forward/backward
// cursor positions across calls — two cursor values, never references, so
// the forward and backward walks never interfere with each other.
type singleViewer struct {
	name    string
	log     coreLog
	fwdPos  sparseindex.Position
	backPos sparseindex.Position
}

func newSingleViewer(f *fileLog) *singleViewer {
	return &singleViewer{
		name:    f.name,
		log:     f.active(),
		fwdPos:  sparseindex.Start(),
		backPos: sparseindex.End(),
	}
}

func (v *singleViewer) Next() (*viewLine, error) {
	next, line, err := v.log.Next(v.fwdPos)
	v.fwdPos = next
	if err != nil || line == nil {
		return nil, err
	}
	return &viewLine{source: v.name, line: *line}, nil
}

func (v *singleViewer) NextBack() (*viewLine, error) {
	next, line, err := v.log.NextBack(v.backPos)
	v.backPos = next
	if err != nil || line == nil {
		return nil, err
	}
	return &viewLine{source: v.name, line: *line}, nil
}

func (v *singleViewer) Seek(offset uint64) {
	v.fwdPos = sparseindex.AtOffset(offset)
	v.backPos = sparseindex.AtOffset(offset)
}

func (v *singleViewer) Len() uint64 { return v.log.Len() }

func (v *singleViewer) SetTimeout(d time.Duration) { v.log.SetTimeout(d) }

func (v *singleViewer) TimedOut() bool { return v.log.TimedOut() }
func (v *singleViewer) Stats() []indexedlog.IndexStats {
	return []indexedlog.IndexStats{v.log.Info()}
}

// mergeViewer drives a mergelog.Merged over several fileLogs' active
// coreLogs.
type mergeViewer struct {
	m    *mergelog.Merged
	logs []coreLog
}

// coreLogSource adapts a coreLog to mergelog.Source without mergelog
// needing to know about this package's coreLog interface.
type coreLogSource struct{ log coreLog }

func (s coreLogSource) Next(pos sparseindex.Position) (sparseindex.Position, *mergelog.Line, error) {
	next, line, err := s.log.Next(pos)
	return next, logLineToMerge(line), err
}

func (s coreLogSource) NextBack(pos sparseindex.Position) (sparseindex.Position, *mergelog.Line, error) {
	next, line, err := s.log.NextBack(pos)
	return next, logLineToMerge(line), err
}

func logLineToMerge(l *indexedlog.LogLine) *mergelog.Line {
	if l == nil {
		return nil
	}
	return &mergelog.Line{Offset: l.Offset, Bytes: l.Bytes}
}

func newMergeViewer(files []*fileLog) *mergeViewer {
	names := make([]string, len(files))
	logs := make([]coreLog, len(files))
	srcs := make([]mergelog.Source, len(files))
	for i, f := range files {
		names[i] = f.name
		logs[i] = f.active()
		srcs[i] = coreLogSource{log: logs[i]}
	}
	return &mergeViewer{m: mergelog.New(names, srcs), logs: logs}
}

func (v *mergeViewer) Next() (*viewLine, error) {
	e, timedOut, err := v.m.Next()
	if err != nil || timedOut || e == nil {
		return nil, err
	}
	return &viewLine{source: e.Source, line: indexedlog.LogLine{Offset: e.Line.Offset, Bytes: e.Line.Bytes}}, nil
}

func (v *mergeViewer) NextBack() (*viewLine, error) {
	e, timedOut, err := v.m.NextBack()
	if err != nil || timedOut || e == nil {
		return nil, err
	}
	return &viewLine{source: e.Source, line: indexedlog.LogLine{Offset: e.Line.Offset, Bytes: e.Line.Bytes}}, nil
}

func (v *mergeViewer) Seek(offset uint64) { v.m.Seek(offset) }

func (v *mergeViewer) Len() uint64 {
	var total uint64
	for _, l := range v.logs {
		total += l.Len()
	}
	return total
}

func (v *mergeViewer) SetTimeout(d time.Duration) { v.m.SetTimeout(d) }
func (v *mergeViewer) TimedOut() bool             { return v.m.TimedOut() }

func (v *mergeViewer) Stats() []indexedlog.IndexStats {
	stats := make([]indexedlog.IndexStats, len(v.logs))
	for i, l := range v.logs {
		stats[i] = l.Info()
	}
	return stats
}

// newViewer builds the right viewer for the current set of opened files:
// a singleViewer when there is exactly one, a mergeViewer across all of
// them otherwise.
func newViewer(files []*fileLog) viewer {
	if len(files) == 1 {
		return newSingleViewer(files[0])
	}
	return newMergeViewer(files)
}
