package inbox

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/horken7/your-mail-buddy/internal/keys"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/theme"
)

// Ranker provides the current batch ordered by importance.
type Ranker interface {
	Ranked(ctx context.Context) ([]model.BatchItem, error)
}

// LoadedMsg carries a freshly ranked batch.
type LoadedMsg struct {
	Items []model.BatchItem
	Err   error
}

// SelectedMsg is sent when the user opens a message.
type SelectedMsg struct {
	Item model.BatchItem
}

// Model is the ranked inbox list.
type Model struct {
	list   list.Model
	source Ranker
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates an empty inbox list.
func New(source Ranker, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetStatusBarItemName("email", "emails")
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		source: source,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Init loads whatever the session already holds.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the inbox.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.Err != nil {
			return m, nil
		}
		cmd := m.SetItems(msg.Items)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Select) {
			it, ok := m.list.SelectedItem().(Item)
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return SelectedMsg{Item: it.BatchItem} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SetItems replaces the rows, keeping the cursor in range.
func (m *Model) SetItems(items []model.BatchItem) tea.Cmd {
	rows := make([]list.Item, len(items))
	for i, it := range items {
		rows[i] = Item{BatchItem: it}
	}
	return m.list.SetItems(rows)
}

// Len returns the number of rows shown.
func (m Model) Len() int {
	return len(m.list.Items())
}

// View renders the inbox.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No emails in this session.\n\nPress f to fetch and analyze unread mail.")
	}
	return m.list.View()
}

// Load returns a command that reads the ranked batch.
func (m Model) Load() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		items, err := src.Ranked(context.Background())
		return LoadedMsg{Items: items, Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
