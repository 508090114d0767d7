package inbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/theme"
)

// pendingBadge marks a message that has not been analyzed yet.
const pendingBadge = "⏳"

// Item wraps a batch item so it can be used in a bubbles/list.
type Item struct {
	model.BatchItem
}

func (i Item) FilterValue() string { return i.Message.Subject }

// Title returns the first row: sender and subject.
func (i Item) Title() string {
	subject := i.Message.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return fmt.Sprintf("%s  %s", i.Message.Sender, subject)
}

// Description returns the second row: the summary, or why there is none.
func (i Item) Description() string {
	switch {
	case i.Verdict == nil:
		return "waiting for analysis"
	case i.State == model.StateReplied:
		return "reply sent, not yet marked read"
	default:
		return i.Verdict.Summary
	}
}

// Badge returns the importance emoji for the row.
func (i Item) Badge() string {
	if i.Verdict == nil {
		return pendingBadge
	}
	return theme.ImportanceBadge(i.Verdict.Importance)
}

// ItemDelegate renders inbox rows.
type ItemDelegate struct{}

func (d ItemDelegate) Height() int  { return 2 }
func (d ItemDelegate) Spacing() int { return 1 }

func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws the badge, the title row and the summary row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	width := m.Width() - 6
	if width < 10 {
		width = 10
	}

	titleStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	if it.Verdict != nil {
		titleStyle = theme.ImportanceStyle(it.Verdict.Importance)
	}

	title := it.Badge() + " " + titleStyle.Render(truncate(it.Title(), width))
	desc := "   " + theme.DimmedStyle.Render(truncate(it.Description(), width))

	row := lipgloss.JoinVertical(lipgloss.Left, title, desc)
	if index == m.Index() {
		fmt.Fprint(w, theme.SelectedItemStyle.Render(row))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render(row))
}

// truncate shortens s to n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
