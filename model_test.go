package main

import (
	"strings"
	"testing"
)

func TestNewModelOpensSingleFileAndLoadsFollowWindow(t *testing.T) {
	path := writeTempFile(t, "a.log", "one\ntwo\nthree\nfour\nfive\n")
	cfg := &Config{Files: []string{path}, RefreshRate: 1}

	m := NewModel(cfg)
	defer m.Close()

	if len(m.openErrs) != 0 {
		t.Fatalf("unexpected open errors: %v", m.openErrs)
	}
	if !m.follow {
		t.Fatal("expected a freshly opened Model to start in follow mode")
	}

	m.width, m.height = 80, 10 // viewportHeight() == 2
	m.loadWindow()

	if len(m.lines) == 0 {
		t.Fatal("expected loadWindow to populate some lines")
	}
	last := m.lines[len(m.lines)-1]
	if strings.TrimSuffix(string(last.line.Bytes), "\n") != "five" {
		t.Fatalf("expected follow mode to end on the last line, got %q", last.line.Bytes)
	}
}

func TestNewModelConstructsConfiguredFilters(t *testing.T) {
	path := writeTempFile(t, "a.log", "keep\ndrop\nkeep\n")
	cfg := &Config{Files: []string{path}, Include: "keep"}

	m := NewModel(cfg)
	defer m.Close()

	if len(m.files) != 1 || m.files[0].include == nil {
		t.Fatal("expected the configured include filter to be installed at startup")
	}
}

func TestNewModelRecordsInvalidStartupFilterAsStatus(t *testing.T) {
	path := writeTempFile(t, "a.log", "one\ntwo\n")
	cfg := &Config{Files: []string{path}, Include: "(unclosed"}

	m := NewModel(cfg)
	defer m.Close()

	if m.statusMsg == "" || !m.statusIsError {
		t.Fatal("expected an invalid startup include pattern to surface as an error status")
	}
}

func TestApplyFiltersRejectsInvalidRegexLeavingPriorViewIntact(t *testing.T) {
	path := writeTempFile(t, "a.log", "apple\nbanana\ncherry\n")
	cfg := &Config{Files: []string{path}}

	m := NewModel(cfg)
	defer m.Close()

	if err := m.applyFilters("an", ""); err != nil {
		t.Fatalf("applyFilters: %v", err)
	}
	if m.files[0].include == nil {
		t.Fatal("expected the first valid filter to be installed")
	}

	if err := m.applyFilters("(unclosed", ""); err == nil {
		t.Fatal("expected an error for an invalid regex")
	}
	if m.files[0].include == nil {
		t.Fatal("a rejected regex must leave the previously installed filter in effect")
	}
}

func TestScrollByLeavesFollowModeAndMovesWindow(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 20; i++ {
		b.WriteString(strings.Repeat("x", 1))
		b.WriteString("\n")
	}
	path := writeTempFile(t, "a.log", b.String())
	cfg := &Config{Files: []string{path}}

	m := NewModel(cfg)
	defer m.Close()
	m.width, m.height = 80, 10

	m.topOffset = 0
	m.follow = false
	m.loadWindow()
	before := m.topOffset

	m.scrollBy(2)

	if m.follow {
		t.Fatal("scrollBy must leave follow mode")
	}
	if m.topOffset <= before {
		t.Fatalf("expected topOffset to advance past %d, got %d", before, m.topOffset)
	}
}
