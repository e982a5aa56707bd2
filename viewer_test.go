package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenInputPlainFile(t *testing.T) {
	path := writeTempFile(t, "a.log", "one\ntwo\nthree\n")
	f, err := openInput(path)
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	defer f.close()

	if f.base.Len() != 14 {
		t.Fatalf("Len() = %d, want 14", f.base.Len())
	}
}

func TestOpenInputMissingFileErrors(t *testing.T) {
	_, err := openInput(filepath.Join(t.TempDir(), "does-not-exist.log"))
	if err == nil {
		t.Fatal("expected an error opening a nonexistent file")
	}
}

func TestSingleViewerWalksForwardAndBackward(t *testing.T) {
	path := writeTempFile(t, "a.log", "one\ntwo\nthree\n")
	f, err := openInput(path)
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	defer f.close()

	v := newViewer([]*fileLog{f})

	var fwd []string
	for {
		vl, err := v.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if vl == nil {
			break
		}
		fwd = append(fwd, strings.TrimSuffix(string(vl.line.Bytes), "\n"))
	}
	want := []string{"one", "two", "three"}
	if len(fwd) != len(want) {
		t.Fatalf("forward = %v, want %v", fwd, want)
	}

	v.Seek(f.base.Len())
	var back []string
	for {
		vl, err := v.NextBack()
		if err != nil {
			t.Fatalf("NextBack: %v", err)
		}
		if vl == nil {
			break
		}
		back = append(back, strings.TrimSuffix(string(vl.line.Bytes), "\n"))
	}
	for i := range want {
		if back[i] != want[len(want)-1-i] {
			t.Fatalf("backward[%d] = %q, want %q", i, back[i], want[len(want)-1-i])
		}
	}
}

func TestMergeViewerInterleavesAcrossFiles(t *testing.T) {
	a := writeTempFile(t, "a.log", "1\n3\n5\n")
	b := writeTempFile(t, "b.log", "0\n2\n4\n")

	fa, err := openInput(a)
	if err != nil {
		t.Fatalf("openInput a: %v", err)
	}
	defer fa.close()
	fb, err := openInput(b)
	if err != nil {
		t.Fatalf("openInput b: %v", err)
	}
	defer fb.close()

	v := newViewer([]*fileLog{fa, fb})
	var got []string
	for {
		vl, err := v.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if vl == nil {
			break
		}
		got = append(got, strings.TrimSuffix(string(vl.line.Bytes), "\n"))
	}
	want := []string{"0", "1", "2", "3", "4", "5"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileLogSetFiltersInstallsIncludeThenExclude(t *testing.T) {
	path := writeTempFile(t, "a.log", "keep-1\ndrop-me\nkeep-2\nkeep-drop\n")
	f, err := openInput(path)
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	defer f.close()

	if err := f.setFilters("keep", "drop"); err != nil {
		t.Fatalf("setFilters: %v", err)
	}
	if f.include == nil || f.exclude == nil {
		t.Fatal("expected both include and exclude overlays installed")
	}

	v := newSingleViewer(f)
	var got []string
	for {
		vl, err := v.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if vl == nil {
			break
		}
		got = append(got, strings.TrimSuffix(string(vl.line.Bytes), "\n"))
	}
	want := []string{"keep-1", "keep-2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileLogSetFiltersRejectsInvalidRegexWithoutMutating(t *testing.T) {
	path := writeTempFile(t, "a.log", "one\ntwo\n")
	f, err := openInput(path)
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	defer f.close()

	if err := f.setFilters("one", ""); err != nil {
		t.Fatalf("setFilters: %v", err)
	}
	prevInclude := f.include

	if err := f.setFilters("(unclosed", ""); err == nil {
		t.Fatal("expected an error for an invalid regex")
	}

	// A rejected pattern must leave whatever filter was previously in
	// effect untouched.
	if f.include != prevInclude {
		t.Fatal("a failed setFilters call must not disturb the previously installed filter")
	}
}
