package sparseindex

import "testing"

// sample is a six-line fixture:
//
//	"Hello, world\n\nThis is a test.\nThis is only a test.\n\nEnd of message\n"
//
// with line-start markers at 0, 13, 14, 30, 51, 52, 67.
const sample = "Hello, world\n\nThis is a test.\nThis is only a test.\n\nEnd of message\n"

func assertWaypoints(t *testing.T, got []Waypoint, want []Waypoint) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("waypoint count = %d, want %d\ngot:  %v\nwant: %v", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("waypoint[%d] = %+v, want %+v\ngot:  %v\nwant: %v", i, got[i], want[i], got, want)
		}
	}
}

func TestNewIndexIsOneUnmappedWaypoint(t *testing.T) {
	ix := New()
	assertWaypoints(t, ix.Snapshot(), []Waypoint{unmapped(0, Infinity)})
}

// TestParseChunkOutOfOrder exercises a sparse build-up scenario: a chunk
// read starting mid-file (offset 35, not a known line boundary) is parsed
// before the chunk that covers the file's start. Markers are recorded as
// line-start points rather than line ranges, so a line whose start and
// terminating newline are discovered in two separately-parsed chunks still
// ends up fully represented: parsing [35,67) records the starts at 51 and
// 52 (and the dangling, not-yet-terminated start at 67); parsing [0,35)
// then records the starts at 0, 13, 14, and 30, and 30's adjacency to the
// already-known 51 closes the line between them without any further read.
func TestParseChunkOutOfOrder(t *testing.T) {
	ix := New()

	ix.ParseChunk(35, []byte(sample[35:]))
	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		unmapped(0, 35),
		mark(51),
		mark(52),
		mark(67),
		unmapped(67, Infinity),
	})

	ix.ParseChunk(0, []byte(sample[:35]))
	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(0),
		mark(13),
		mark(14),
		mark(30),
		mark(51),
		mark(52),
		mark(67),
		unmapped(67, Infinity),
	})
}

// TestForwardGapResolutionConverges drives two chunks that, unlike
// TestParseChunkOutOfOrder's adjacent pair, genuinely do not touch: parsing
// [0,13) and [52,67) leaves the interior [13,52) truly unexplored, since
// neither read discovers a newline bounding that span. A third chunk
// anchored at 13 — the gap's genuine left boundary, already a known line
// start — is exactly what IndexedLog's forward gap resolution would read,
// and closes the gap completely.
func TestForwardGapResolutionConverges(t *testing.T) {
	ix := New()
	ix.ParseChunk(0, []byte(sample[:13]))
	ix.ParseChunk(52, []byte(sample[52:67]))

	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(0),
		mark(13),
		unmapped(13, 52),
		mark(67),
		unmapped(67, Infinity),
	})

	i := ix.Search(13)
	w := ix.At(i)
	if w.Kind != Unmapped || w.Start != 13 || w.End != 52 {
		t.Fatalf("expected a residual Unmapped(13,52), got %+v", w)
	}
	ix.ParseChunk(w.Start, []byte(sample[w.Start:w.End]))

	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(0),
		mark(13),
		mark(14),
		mark(30),
		mark(51),
		mark(52),
		mark(67),
		unmapped(67, Infinity),
	})
}

func TestParseChunkInOrderFromZero(t *testing.T) {
	ix := New()
	ix.ParseChunk(0, []byte(sample))
	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(0),
		mark(13),
		mark(14),
		mark(30),
		mark(51),
		mark(52),
		mark(67),
		unmapped(67, Infinity),
	})
}

func TestParseChunkNoTrailingNewline(t *testing.T) {
	ix := New()
	ix.ParseChunk(0, []byte("abc\ndef"))
	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(0),
		mark(4),
		unmapped(7, Infinity),
	})
}

func TestParseChunkEmptySource(t *testing.T) {
	ix := New()
	ix.ParseChunk(0, nil)
	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(0),
		unmapped(0, Infinity),
	})
}

func TestParseChunkOnlyNewlines(t *testing.T) {
	ix := New()
	ix.ParseChunk(0, []byte("\n\n\n"))
	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(0),
		mark(1),
		mark(2),
		mark(3),
		unmapped(3, Infinity),
	})
}

func TestInsertLinePanicsOutsideUnmappedRegion(t *testing.T) {
	ix := New()
	ix.InsertLine(0, 13)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic inserting over an already-Mapped range")
		}
	}()
	ix.InsertLine(5, 10)
}

// TestEraseGapEdgeAnchoredCoalesces exercises the Filter Overlay's access
// pattern: repeatedly erasing from one edge of the remaining Unmapped
// region must not fragment the index into one waypoint per erased span.
func TestEraseGapEdgeAnchoredCoalesces(t *testing.T) {
	ix := New()
	ix.EraseGap(0, 10)
	ix.EraseGap(10, 20)
	ix.EraseGap(20, 30)

	assertWaypoints(t, ix.Snapshot(), []Waypoint{unmapped(30, Infinity)})
}

func TestEraseGapThenInsertLineMiddle(t *testing.T) {
	ix := New()
	ix.EraseGap(0, 10)
	ix.InsertLine(20, 25)
	ix.EraseGap(10, 20)
	ix.EraseGap(25, 30)

	assertWaypoints(t, ix.Snapshot(), []Waypoint{
		mark(20),
		mark(25),
		unmapped(30, Infinity),
	})
}

func TestSearchFindsTrailingWaypointPastEnd(t *testing.T) {
	ix := New()
	ix.InsertLine(0, 13)
	i := ix.Search(Infinity)
	w := ix.At(i)
	if w.Kind != Unmapped || w.End != Infinity {
		t.Fatalf("Search(Infinity) = %+v, want the trailing Unmapped waypoint", w)
	}
}
