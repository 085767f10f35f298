// Package tui holds the interactive pieces of the triage CLI. The only
// screen is the disambiguation picker, shown when intake halts because a
// description matches several clients.
package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kestrelworks/triage/internal/resolve"
)

// ErrPickerCancelled is returned when the requester backs out without
// choosing a client.
var ErrPickerCancelled = errors.New("selection cancelled")

var pickerTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205")).
	Padding(0, 1)

// clientItem adapts a resolution candidate for the list.
type clientItem struct {
	cand resolve.Candidate
}

func (i clientItem) Title() string { return i.cand.Name }
func (i clientItem) Description() string {
	return fmt.Sprintf("%s · similarity %.2f", i.cand.ID, i.cand.Similarity)
}
func (i clientItem) FilterValue() string { return i.cand.Name }

type pickerModel struct {
	list      list.Model
	choice    string
	cancelled bool
}

func newPickerModel(prompt string, candidates []resolve.Candidate) pickerModel {
	items := make([]list.Item, len(candidates))
	for i, c := range candidates {
		items[i] = clientItem{cand: c}
	}

	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)

	l := list.New(items, delegate, 60, 2*len(items)+7)
	l.Title = prompt
	l.Styles.Title = pickerTitleStyle
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		// While the filter input is typing, keys belong to it.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(clientItem); ok {
				m.choice = item.cand.ID
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return "\n" + m.list.View()
}

// PickClient shows the candidates and blocks until the requester chooses
// one or backs out. Returns the chosen client ID.
func PickClient(prompt string, candidates []resolve.Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", errors.New("no candidates to choose from")
	}

	final, err := tea.NewProgram(newPickerModel(prompt, candidates)).Run()
	if err != nil {
		return "", fmt.Errorf("run picker: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok || m.cancelled || m.choice == "" {
		return "", ErrPickerCancelled
	}
	return m.choice, nil
}
