// Package tui is an interactive terminal browser over a Manager.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryanm101/bundlereg/internal/manager"
	"github.com/ryanm101/bundlereg/internal/registry"
)

// Run starts the browser and blocks until the user quits.
func Run(ctx context.Context, mgr *manager.Manager) error {
	p := tea.NewProgram(newModel(ctx, mgr), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

type model struct {
	ctx context.Context
	mgr *manager.Manager

	entries []registry.Entry
	cursor  int
	showAll bool
	width   int
	height  int

	inDetail bool
	showHelp bool

	busy      bool
	spinner   spinner.Model
	statusMsg string
	err       error
}

// Messages
type entriesMsg struct {
	entries []registry.Entry
}

type syncMsg struct {
	bundles int
	failed  int
	err     error
}

type fetchMsg struct {
	id    string
	files int
	bytes int64
	err   error
}

type unloadMsg struct {
	unloaded int
}

func newModel(ctx context.Context, mgr *manager.Manager) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return model{ctx: ctx, mgr: mgr, spinner: s}
}

// Init loads the bundle list
func (m model) Init() tea.Cmd {
	return tea.Batch(m.loadEntries(), m.spinner.Tick)
}

// Update handles messages
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case entriesMsg:
		m.entries = msg.entries
		if m.cursor >= len(m.entries) {
			m.cursor = max(len(m.entries)-1, 0)
		}

	case syncMsg:
		m.busy = false
		m.err = msg.err
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Sync incomplete: %d source(s) failed", msg.failed)
		} else {
			m.statusMsg = fmt.Sprintf("Synced: %d bundles known", msg.bundles)
		}
		return m, m.loadEntries()

	case fetchMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.statusMsg = fmt.Sprintf("Fetched %s: %d file(s), %d bytes", msg.id, msg.files, msg.bytes)
		} else {
			m.statusMsg = fmt.Sprintf("Fetch of %s failed", msg.id)
		}

	case unloadMsg:
		m.statusMsg = fmt.Sprintf("Unloaded %d payload(s)", msg.unloaded)

	case tea.KeyMsg:
		if msg.String() == "?" {
			m.showHelp = !m.showHelp
			return m, nil
		}
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		if m.inDetail {
			switch msg.String() {
			case "q", "esc", "backspace":
				m.inDetail = false
			case "f":
				return m.startFetch()
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "pgup":
			m.cursor = max(m.cursor-10, 0)
		case "pgdown":
			m.cursor = max(min(m.cursor+10, len(m.entries)-1), 0)
		case "enter":
			if len(m.entries) > 0 {
				m.inDetail = true
			}
		case "a":
			m.showAll = !m.showAll
			m.cursor = 0
			return m, m.loadEntries()
		case "s":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.statusMsg = "Syncing metadata..."
			return m, m.sync()
		case "f":
			return m.startFetch()
		case "u":
			return m, m.unload()
		case "r":
			return m, m.loadEntries()
		}
	}

	return m, nil
}

func (m model) selected() (registry.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return registry.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m model) startFetch() (tea.Model, tea.Cmd) {
	e, ok := m.selected()
	if !ok || m.busy {
		return m, nil
	}
	m.busy = true
	m.statusMsg = fmt.Sprintf("Fetching %s...", e.ID)
	return m, m.fetch(e.ID)
}

// Commands
func (m model) loadEntries() tea.Cmd {
	mgr, all := m.mgr, m.showAll
	return func() tea.Msg {
		if all {
			return entriesMsg{entries: mgr.AllBundles()}
		}
		return entriesMsg{entries: mgr.CompatibleBundles()}
	}
}

func (m model) sync() tea.Cmd {
	ctx, mgr := m.ctx, m.mgr
	return func() tea.Msg {
		report, err := mgr.Sync(ctx)
		msg := syncMsg{bundles: mgr.Registry().Len(), err: err}
		if report != nil {
			msg.failed = len(report.Failed())
		}
		return msg
	}
}

func (m model) fetch(id string) tea.Cmd {
	ctx, mgr := m.ctx, m.mgr
	return func() tea.Msg {
		payloads, err := mgr.GetBundleFiles(ctx, id)
		if err != nil {
			return fetchMsg{id: id, err: err}
		}
		var total int64
		for _, p := range payloads {
			total += p.Size()
		}
		return fetchMsg{id: id, files: len(payloads), bytes: total}
	}
}

func (m model) unload() tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		return unloadMsg{unloaded: mgr.UnloadAll()}
	}
}

// View renders the UI
func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.viewHelp()
	}
	if m.inDetail {
		return m.viewDetail()
	}
	return m.viewMain()
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("57")).
			Foreground(lipgloss.Color("255"))

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)
)

func (m model) viewMain() string {
	// Panel chrome and footer take roughly 12 lines.
	maxVisible := max(m.height-12, 5)

	scope := "compatible with " + m.mgr.Platform()
	if m.showAll {
		scope = "all platforms"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Bundles (%s)", scope)) + "\n")

	if len(m.entries) == 0 {
		b.WriteString(dimStyle.Render("No bundles. Press s to sync or a to show all platforms."))
	} else {
		start := 0
		if m.cursor >= maxVisible {
			start = m.cursor - maxVisible + 1
		}
		end := min(start+maxVisible, len(m.entries))

		for i := start; i < end; i++ {
			e := m.entries[i]
			cached := " "
			if m.filesCached(e) {
				cached = "●"
			}
			line := fmt.Sprintf("%s %-24s %-28s %s", cached, truncate(e.ID, 24), truncate(e.Name, 28), e.Author)
			if i == m.cursor {
				line = selectedStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
		if len(m.entries) > maxVisible {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d/%d)", m.cursor+1, len(m.entries))) + "\n")
		}
	}

	panel := panelStyle.Width(max(m.width-4, 20)).Render(b.String())
	help := dimStyle.Render("↑/↓ move • enter details • s sync • f fetch • u unload • a all/compatible • ? help • q quit")
	return lipgloss.JoinVertical(lipgloss.Left, panel, help, m.viewStatus())
}

func (m model) viewDetail() string {
	e, ok := m.selected()
	if !ok {
		return m.viewMain()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(e.Name) + "\n")
	fmt.Fprintf(&b, "ID:       %s\n", e.ID)
	fmt.Fprintf(&b, "Author:   %s\n", e.Author)
	if e.Description != "" {
		fmt.Fprintf(&b, "About:    %s\n", e.Description)
	}
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, "Tags:     %s\n", strings.Join(e.Tags, ", "))
	}
	if e.LastUpdated > 0 {
		fmt.Fprintf(&b, "Updated:  %s\n", time.Unix(e.LastUpdated, 0).UTC().Format("2006-01-02 15:04"))
	}
	if msg := e.ErrorMessage(); msg != "" {
		b.WriteString(errorStyle.Render("Error:    "+msg) + "\n")
	}

	platforms := make([]string, 0, len(e.Bundles))
	for p := range e.Bundles {
		platforms = append(platforms, p)
	}
	slices.Sort(platforms)

	b.WriteString("\nPlatforms:\n")
	for _, p := range platforms {
		line := fmt.Sprintf("  %s", p)
		if p == m.mgr.Platform() {
			line = selectedStyle.Render(line + " (this platform)")
		}
		b.WriteString(line + "\n")
		for _, f := range e.Bundles[p] {
			mark := "  "
			if m.mgr.Cache().Cached(f) {
				mark = "● "
			}
			b.WriteString(dimStyle.Render("    "+mark+f) + "\n")
		}
	}

	panel := panelStyle.Width(max(m.width-4, 20)).Render(b.String())
	help := dimStyle.Render("f fetch files • esc back • ? help")
	return lipgloss.JoinVertical(lipgloss.Left, panel, help, m.viewStatus())
}

func (m model) viewHelp() string {
	help := `Keys

  ↑/k, ↓/j     Move
  pgup/pgdown  Move by 10
  enter        Bundle details
  esc          Back
  a            Toggle all platforms / compatible only
  s            Sync metadata from configured sources
  f            Fetch the selected bundle's files for this platform
  u            Unload every cached payload
  r            Reload list
  ?            Toggle help
  q            Quit`
	return panelStyle.Render(help)
}

func (m model) viewStatus() string {
	var parts []string
	if m.busy {
		parts = append(parts, m.spinner.View())
	}
	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(m.err.Error()))
	}
	parts = append(parts, fmt.Sprintf("cache: %d file(s), %d bytes", m.mgr.Cache().Len(), m.mgr.Cache().Size()))
	return statusStyle.Render(strings.Join(parts, "  "))
}

// filesCached reports whether every file of e for this platform is cached.
func (m model) filesCached(e registry.Entry) bool {
	files := e.Files(m.mgr.Platform())
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if !m.mgr.Cache().Cached(f) {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
