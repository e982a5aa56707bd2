package mergelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alienxp03/pagelog/internal/filter"
	"github.com/alienxp03/pagelog/internal/indexedlog"
	"github.com/alienxp03/pagelog/internal/source"
)

func openFile(t *testing.T, name, body string) *indexedlog.Log {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	pf, err := source.OpenPlainFile(path)
	if err != nil {
		t.Fatalf("OpenPlainFile: %v", err)
	}
	t.Cleanup(func() { pf.Close() })
	return indexedlog.New(pf)
}

// TestMergeOddEvenScenario exercises source A holding the odd digits and
// source B the even digits, one per line; the forward merge must interleave
// them in lexicographic (here, numeric-as-bytes) order.
func TestMergeOddEvenScenario(t *testing.T) {
	a := openFile(t, "a.log", "1\n3\n5\n7\n9\n")
	b := openFile(t, "b.log", "0\n2\n4\n6\n8\n")

	m := New([]string{"a", "b"}, []Source{LogSource{Log: a}, LogSource{Log: b}})

	var got []string
	for {
		e, timedOut, err := m.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if timedOut {
			t.Fatal("unexpected timeout")
		}
		if e == nil {
			break
		}
		got = append(got, strings.TrimSuffix(string(e.Line.Bytes), "\n"))
	}

	want := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMergeOddEvenReverseIsForwardReversed(t *testing.T) {
	a := openFile(t, "a.log", "1\n3\n5\n7\n9\n")
	b := openFile(t, "b.log", "0\n2\n4\n6\n8\n")

	m := New([]string{"a", "b"}, []Source{LogSource{Log: a}, LogSource{Log: b}})

	var rev []string
	for {
		e, timedOut, err := m.NextBack()
		if err != nil {
			t.Fatalf("NextBack: %v", err)
		}
		if timedOut {
			t.Fatal("unexpected timeout")
		}
		if e == nil {
			break
		}
		rev = append(rev, strings.TrimSuffix(string(e.Line.Bytes), "\n"))
	}

	want := []string{"9", "8", "7", "6", "5", "4", "3", "2", "1", "0"}
	if len(rev) != len(want) {
		t.Fatalf("got %v, want %v", rev, want)
	}
	for i := range want {
		if rev[i] != want[i] {
			t.Fatalf("entry[%d] = %q, want %q", i, rev[i], want[i])
		}
	}
}

// TestMergeConsistencyPerSource checks the merge-consistency property: the
// subsequence of merge output restricted to one source equals that
// source's own line sequence.
func TestMergeConsistencyPerSource(t *testing.T) {
	a := openFile(t, "a.log", "apple\ncherry\nfig\n")
	b := openFile(t, "b.log", "banana\ndate\ngrape\n")

	m := New([]string{"a", "b"}, []Source{LogSource{Log: a}, LogSource{Log: b}})

	var fromA, fromB []string
	for {
		e, _, err := m.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e == nil {
			break
		}
		line := strings.TrimSuffix(string(e.Line.Bytes), "\n")
		switch e.Source {
		case "a":
			fromA = append(fromA, line)
		case "b":
			fromB = append(fromB, line)
		default:
			t.Fatalf("unexpected source label %q", e.Source)
		}
	}

	wantA := []string{"apple", "cherry", "fig"}
	wantB := []string{"banana", "date", "grape"}
	if strings.Join(fromA, ",") != strings.Join(wantA, ",") {
		t.Fatalf("fromA = %v, want %v", fromA, wantA)
	}
	if strings.Join(fromB, ",") != strings.Join(wantB, ",") {
		t.Fatalf("fromB = %v, want %v", fromB, wantB)
	}
}

func TestMergeEmptySourcesYieldsNothing(t *testing.T) {
	a := openFile(t, "a.log", "")
	b := openFile(t, "b.log", "")
	m := New([]string{"a", "b"}, []Source{LogSource{Log: a}, LogSource{Log: b}})

	e, timedOut, err := m.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if timedOut {
		t.Fatal("unexpected timeout")
	}
	if e != nil {
		t.Fatalf("got %+v, want nil", e)
	}
}

// TestMergeSingleSourcePassesThrough checks that a merge over exactly one
// source is a no-op: with only one candidate peek at a time, the merge
// can't reorder anything and must reproduce the source's own line order.
func TestMergeSingleSourcePassesThrough(t *testing.T) {
	a := openFile(t, "a.log", "three\none\ntwo\n")
	m := New([]string{"a"}, []Source{LogSource{Log: a}})

	var got []string
	for {
		e, _, err := m.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e == nil {
			break
		}
		got = append(got, strings.TrimSuffix(string(e.Line.Bytes), "\n"))
	}
	want := []string{"three", "one", "two"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestMergeOverFilteredSource merges a filtered log with a plain one: the
// overlay's kept lines must interleave with the other source's lines in
// order, and dropped lines must never surface.
func TestMergeOverFilteredSource(t *testing.T) {
	a := openFile(t, "a.log", "0\n2\n4\n6\n8\n")
	b := openFile(t, "b.log", "1\n3\n5\n7\n9\n")

	pat, err := filter.NewPattern(filter.Include, "^[048]")
	if err != nil {
		t.Fatalf("NewPattern: %v", err)
	}
	ov := filter.New(a, pat)

	m := New([]string{"a", "b"}, []Source{FilterSource{Overlay: ov}, LogSource{Log: b}})

	var got []string
	for {
		e, _, err := m.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e == nil {
			break
		}
		got = append(got, strings.TrimSuffix(string(e.Line.Bytes), "\n"))
	}

	want := []string{"0", "1", "3", "4", "5", "7", "8", "9"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
