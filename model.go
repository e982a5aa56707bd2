package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// focusTarget is which half of the screen keystrokes route to.
type focusTarget int

const (
	focusLog focusTarget = iota
	focusFilters
)

// Model is the bubbletea Model driving the two-panel view: a left panel of
// per-file index stats and a right panel streaming lines pulled lazily
// from the core via a viewer. Model only ever calls
// viewer.Next/NextBack/Seek/Len/SetTimeout/Stats and installs filters through
// (*fileLog).setFilters — it never reaches into the sparse index directly.
type Model struct {
	config *Config
	files  []*fileLog
	cur    viewer

	openErrs []error

	topOffset uint64
	lines     []viewLine
	follow    bool

	width, height int

	focus         focusTarget
	includeInput  textinput.Model
	excludeInput  textinput.Model
	activeInput   *textinput.Model
	statusMsg     string
	statusIsError bool

	headerStyle  lipgloss.Style
	panelStyle   lipgloss.Style
	focusedStyle lipgloss.Style
	statusStyle  lipgloss.Style
}

// NewModel opens config.Files (or stdin if none given) and builds the
// initial Model.
func NewModel(config *Config) *Model {
	paths := config.Files
	if len(paths) == 0 {
		paths = []string{"-"}
	}

	// Opening each path (and building its initial IndexedLog) means at
	// least one stat/open syscall and, for a compressed source, scanning
	// the frame table; fan these out concurrently and bound the fan-out so
	// a directory of hundreds of files doesn't open hundreds of fds at once.
	opened := make([]*fileLog, len(paths))
	openErrs := make([]error, len(paths))
	var g errgroup.Group
	g.SetLimit(8)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			f, err := openInput(p)
			if err != nil {
				openErrs[i] = err
				return nil
			}
			opened[i] = f
			return nil
		})
	}
	g.Wait()

	var files []*fileLog
	var errs []error
	for i, f := range opened {
		if f != nil {
			files = append(files, f)
		}
		if openErrs[i] != nil {
			errs = append(errs, openErrs[i])
		}
	}

	include := textinput.New()
	include.Placeholder = "include regex..."
	include.CharLimit = 256
	if config.Include != "" {
		include.SetValue(config.Include)
	}

	exclude := textinput.New()
	exclude.Placeholder = "exclude regex..."
	exclude.CharLimit = 256
	if config.Exclude != "" {
		exclude.SetValue(config.Exclude)
	}

	m := &Model{
		config:       config,
		files:        files,
		openErrs:     errs,
		follow:       true,
		focus:        focusLog,
		includeInput: include,
		excludeInput: exclude,
		headerStyle: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")),
		panelStyle: lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),
		focusedStyle: lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("69")),
		statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	m.cur = newViewer(files)
	if config.Timeout > 0 {
		m.cur.SetTimeout(config.Timeout)
	}
	if config.Include != "" || config.Exclude != "" {
		if err := m.applyFilters(config.Include, config.Exclude); err != nil {
			m.setStatus(err.Error(), true)
		}
	}
	return m
}

// Close releases every opened byte source.
func (m *Model) Close() {
	for _, f := range m.files {
		f.close()
	}
}

func (m *Model) setStatus(msg string, isError bool) {
	m.statusMsg = msg
	m.statusIsError = isError
}

type tickMsg time.Time

func (m *Model) tickCmd() tea.Cmd {
	d := time.Duration(m.config.RefreshRate) * time.Second
	if d <= 0 {
		d = time.Second
	}
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.EnterAltScreen, m.tickCmd())
}

func (m *Model) viewportHeight() int {
	h := m.height - 8
	if h < 1 {
		h = 1
	}
	return h
}

// applyFilters compiles include/exclude as a trial before mutating any
// file's overlays, so an invalid regex leaves every file's previous filter
// (or lack of one) in effect.
func (m *Model) applyFilters(include, exclude string) error {
	for _, f := range m.files {
		if err := f.setFilters(include, exclude); err != nil {
			return err
		}
	}
	m.cur = newViewer(m.files)
	if m.config.Timeout > 0 {
		m.cur.SetTimeout(m.config.Timeout)
	}
	m.topOffset = 0
	m.follow = true
	return nil
}

func (m *Model) loadWindow() {
	if m.cur == nil {
		return
	}
	height := m.viewportHeight()

	if m.follow {
		m.cur.Seek(m.cur.Len())
		rev := make([]viewLine, 0, height)
		for i := 0; i < height; i++ {
			vl, err := m.cur.NextBack()
			if err != nil {
				m.setStatus(err.Error(), true)
				break
			}
			if vl == nil {
				break
			}
			rev = append(rev, *vl)
		}
		lines := make([]viewLine, len(rev))
		for i, vl := range rev {
			lines[len(rev)-1-i] = vl
		}
		m.lines = lines
		if len(lines) > 0 {
			m.topOffset = lines[0].line.Offset
		}
		return
	}

	m.cur.Seek(m.topOffset)
	lines := make([]viewLine, 0, height)
	for i := 0; i < height; i++ {
		vl, err := m.cur.Next()
		if err != nil {
			m.setStatus(err.Error(), true)
			break
		}
		if vl == nil {
			break
		}
		lines = append(lines, *vl)
	}
	m.lines = lines
}

// scrollBy moves the top of the window n lines forward (n>0) or backward
// (n<0), leaving follow mode.
func (m *Model) scrollBy(n int) {
	if m.cur == nil || n == 0 {
		return
	}
	m.follow = false
	m.cur.Seek(m.topOffset)
	var last *viewLine
	if n > 0 {
		for i := 0; i < n; i++ {
			vl, err := m.cur.Next()
			if err != nil {
				m.setStatus(err.Error(), true)
				return
			}
			if vl == nil {
				break
			}
			last = vl
		}
	} else {
		for i := 0; i < -n; i++ {
			vl, err := m.cur.NextBack()
			if err != nil {
				m.setStatus(err.Error(), true)
				return
			}
			if vl == nil {
				break
			}
			last = vl
		}
	}
	if last != nil {
		m.topOffset = last.line.Offset
	}
	m.loadWindow()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.loadWindow()
		return m, nil

	case tickMsg:
		m.loadWindow()
		return m, m.tickCmd()

	case tea.KeyMsg:
		if m.focus == focusFilters && m.activeInput != nil {
			switch msg.String() {
			case "esc":
				m.activeInput.Blur()
				m.activeInput = nil
				m.focus = focusLog
				return m, nil
			case "enter":
				m.activeInput.Blur()
				m.activeInput = nil
				m.focus = focusLog
				if err := m.applyFilters(m.includeInput.Value(), m.excludeInput.Value()); err != nil {
					m.setStatus(err.Error(), true)
				} else {
					m.setStatus("", false)
					m.loadWindow()
				}
				return m, nil
			default:
				var cmd tea.Cmd
				*m.activeInput, cmd = m.activeInput.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "/":
			m.focus = focusFilters
			m.activeInput = &m.includeInput
			m.includeInput.Focus()
			return m, textinput.Blink
		case "\\":
			m.focus = focusFilters
			m.activeInput = &m.excludeInput
			m.excludeInput.Focus()
			return m, textinput.Blink
		case "f":
			m.follow = !m.follow
			m.loadWindow()
			return m, nil
		case "j", "down":
			m.scrollBy(1)
			return m, nil
		case "k", "up":
			m.scrollBy(-1)
			return m, nil
		case "pgdown", " ":
			m.scrollBy(m.viewportHeight())
			return m, nil
		case "pgup":
			m.scrollBy(-m.viewportHeight())
			return m, nil
		case "g", "home":
			m.follow = false
			m.topOffset = 0
			m.loadWindow()
			return m, nil
		case "G", "end":
			m.follow = true
			m.loadWindow()
			return m, nil
		}
	}
	return m, nil
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	leftWidth := m.width * 30 / 100
	if leftWidth < 22 {
		leftWidth = 22
	}
	if leftWidth > 40 {
		leftWidth = 40
	}
	rightWidth := m.width - leftWidth - 4

	header := m.headerStyle.Width(m.width).Render(" pagelog — bidirectional log pager ")

	left := m.renderFileList(leftWidth)
	right := m.renderLogPanel(rightWidth)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.panelStyle.Width(leftWidth).Height(m.viewportHeight()).Render(left),
		m.panelStyle.Width(rightWidth).Height(m.viewportHeight()).Render(right),
	)

	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderFileList(width int) string {
	var b strings.Builder
	for _, err := range m.openErrs {
		if err != nil {
			fmt.Fprintf(&b, "! %v\n", err)
		}
	}
	if m.cur == nil {
		return b.String()
	}
	for _, s := range m.cur.Stats() {
		fmt.Fprintf(&b, "%s\n  %s indexed of %s\n  %d lines\n\n",
			truncate(s.Name, width-2), humanize.Bytes(s.BytesIndexed), humanize.Bytes(s.BytesTotal), s.LinesIndexed)
	}
	return b.String()
}

func (m *Model) renderLogPanel(width int) string {
	var b strings.Builder
	for _, vl := range m.lines {
		text := strings.TrimRight(string(vl.line.Bytes), "\n")
		style := lipgloss.NewStyle().Foreground(levelOf(vl.line.Bytes).Color())
		prefix := ""
		if len(m.files) > 1 {
			prefix = "[" + vl.source + "] "
		}
		b.WriteString(style.Render(truncate(prefix+text, width)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderFooter() string {
	mode := "scroll"
	if m.follow {
		mode = "follow"
	}
	status := fmt.Sprintf(" [%s] include:%s exclude:%s  (j/k scroll, f follow, / include, \\ exclude, q quit)",
		mode, displayOrDash(m.includeInput.Value()), displayOrDash(m.excludeInput.Value()))
	if m.statusMsg != "" {
		style := lipgloss.NewStyle()
		if m.statusIsError {
			style = m.statusStyle
		}
		return style.Render(status + " — " + m.statusMsg)
	}
	if m.focus == focusFilters && m.activeInput != nil {
		return status + "\n" + m.activeInput.View()
	}
	return status
}

func displayOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "…"
}
