// Package picker is the interactive .playscore file selector used by the CLI
// when convert is run without inputs on a terminal.
package picker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Extension is the only file type offered.
const Extension = ".playscore"

// ErrCancelled is returned by Run when the user quits without confirming.
var ErrCancelled = errors.New("selection cancelled")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF")).
			MarginBottom(1)
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7BD88F"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			MarginTop(1)
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5C07B"))
)

// Model lets the user toggle any number of files in and out of the selection.
type Model struct {
	files     filepicker.Model
	selected  []string
	done      bool
	cancelled bool
	status    string
}

// New creates a picker rooted at dir.
func New(dir string) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{Extension}
	fp.CurrentDirectory = dir
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.ShowSize = true
	fp.ShowPermissions = false

	return Model{files: fp}
}

func (m Model) Init() tea.Cmd {
	return m.files.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelled = true
			return m, tea.Quit
		case "d":
			if len(m.selected) == 0 {
				m.status = "Select at least one file first"
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.files, cmd = m.files.Update(msg)

	if ok, path := m.files.DidSelectFile(msg); ok {
		m.toggle(path)
	}
	if ok, path := m.files.DidSelectDisabledFile(msg); ok {
		m.status = fmt.Sprintf("%s is not a %s file", filepath.Base(path), Extension)
	}
	return m, cmd
}

// toggle adds path to the selection, or removes it when already selected.
func (m *Model) toggle(path string) {
	for i, p := range m.selected {
		if p == path {
			m.selected = append(m.selected[:i:i], m.selected[i+1:]...)
			m.status = "Removed " + filepath.Base(path)
			return
		}
	}
	m.selected = append(m.selected, path)
	m.status = "Added " + filepath.Base(path)
}

func (m Model) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Select .playscore files"))
	b.WriteString("\n")
	b.WriteString(m.files.View())
	b.WriteString("\n")

	if len(m.selected) > 0 {
		b.WriteString(fmt.Sprintf("Selected (%d):\n", len(m.selected)))
		for i, p := range m.selected {
			b.WriteString(selectedStyle.Render(fmt.Sprintf("  %d. %s", i+1, filepath.Base(p))))
			b.WriteString("\n")
		}
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("Enter → add/remove    d → done    q → cancel"))
	return b.String()
}

// Selected returns the chosen paths in selection order.
func (m Model) Selected() []string {
	return append([]string(nil), m.selected...)
}

// Cancelled reports whether the user quit without confirming.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// Run shows the picker on the terminal and returns the confirmed selection.
func Run(dir string) ([]string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}

	p := tea.NewProgram(New(dir), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("picker: %w", err)
	}
	m, ok := final.(Model)
	if !ok || m.Cancelled() {
		return nil, ErrCancelled
	}
	return m.Selected(), nil
}
