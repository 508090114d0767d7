package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/horken7/your-mail-buddy/internal/keys"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/theme"
)

// draftHeight is the number of text rows given to the reply editor.
const draftHeight = 8

// BackMsg signals the parent to navigate back to the inbox.
type BackMsg struct{}

// SendMsg asks the parent to send Draft as the reply to message ID.
type SendMsg struct {
	ID    string
	Draft string
}

// Model shows one message with its analysis and an editable reply.
type Model struct {
	item     *model.BatchItem
	viewport viewport.Model
	draft    textarea.Model
	keys     *keys.KeyMap
	editing  bool
	sending  bool
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	ta := textarea.New()
	ta.Placeholder = "Write a reply..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0

	m := Model{
		viewport: viewport.New(width, 1),
		draft:    ta,
		keys:     keys,
	}
	m.SetSize(width, height)
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.forward(msg)
	}

	switch {
	case key.Matches(keyMsg, m.keys.Send):
		return m, m.send()

	case key.Matches(keyMsg, m.keys.Back):
		if m.editing {
			m.editing = false
			m.draft.Blur()
			return m, nil
		}
		return m, func() tea.Msg { return BackMsg{} }

	case !m.editing && key.Matches(keyMsg, m.keys.Edit):
		if !m.replyable() {
			return m, nil
		}
		m.editing = true
		cmd := m.draft.Focus()
		return m, cmd
	}

	return m.forward(msg)
}

// forward passes msg to the editor while editing and to the viewport
// otherwise.
func (m Model) forward(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.editing {
		m.draft, cmd = m.draft.Update(msg)
		return m, cmd
	}
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) send() tea.Cmd {
	if !m.replyable() || m.sending {
		return nil
	}
	id := m.item.Message.ID
	draft := m.draft.Value()
	return func() tea.Msg { return SendMsg{ID: id, Draft: draft} }
}

func (m Model) replyable() bool {
	return m.item != nil && m.item.Actionable()
}

// View renders the message pane above the reply editor.
func (m Model) View() string {
	if m.item == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No email selected")
	}

	if !m.replyable() {
		return m.viewport.View()
	}

	label := "Reply"
	switch {
	case m.sending:
		label = "Reply (sending...)"
	case m.editing:
		label = "Reply (editing, esc to stop)"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		theme.SectionTitleStyle.Render(label),
		m.draft.View(),
	)
}

// renderContent builds the message pane.
func (m Model) renderContent() string {
	it := m.item
	msg := it.Message

	metaStyle := theme.DimmedStyle
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, val string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-8s", label)), valStyle.Render(val))
	}

	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	sections := []string{
		theme.SectionTitleStyle.Render(subject),
		"",
		row("From:", msg.Sender),
		row("To:", msg.Recipient),
	}
	if d := msg.Date(); d != "" {
		sections = append(sections, row("Date:", d))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-2, 80), 0)))
	sections = append(sections, "", sep, "")

	if v := it.Verdict; v != nil {
		sections = append(sections,
			fmt.Sprintf("%s %s", theme.ImportanceBadge(v.Importance),
				theme.ImportanceStyle(v.Importance).Render(v.Summary)),
		)
		if v.Failed() {
			sections = append(sections, theme.DimmedStyle.Italic(true).Render(v.DraftReply))
		}
		if it.State == model.StateReplied {
			sections = append(sections, theme.DimmedStyle.Render(
				"The reply was sent; sending again only marks the email read."))
		}
		sections = append(sections, "", sep, "")
	}

	body := lipgloss.NewStyle().Width(max(m.width-2, 10)).Render(msg.Body)
	sections = append(sections, body)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetItem shows item and loads its draft reply into the editor.
func (m *Model) SetItem(item model.BatchItem) {
	m.item = &item
	m.editing = false
	m.sending = false
	m.draft.Blur()
	m.draft.Reset()
	if item.Actionable() {
		m.draft.SetValue(item.Verdict.DraftReply)
	}
	m.resize()
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// CurrentID returns the id of the shown message, or "".
func (m Model) CurrentID() string {
	if m.item == nil {
		return ""
	}
	return m.item.Message.ID
}

// SetSending marks a reply for the shown message as in flight.
func (m *Model) SetSending(sending bool) {
	m.sending = sending
}

// Editing reports whether the reply editor has focus, so global keys can
// step aside.
func (m Model) Editing() bool {
	return m.editing
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.resize()
	if m.item != nil {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m *Model) resize() {
	vpHeight := m.height
	if m.replyable() {
		// editor rows + its label + textarea chrome
		vpHeight -= draftHeight + 2
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(vpHeight, 3)
	m.draft.SetWidth(max(m.width-2, 10))
	m.draft.SetHeight(draftHeight)
}
