package msglist

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailgrab/internal/model"
	"github.com/nhle/mailgrab/internal/theme"
)

// item adapts a decoded message to the bubbles list.Item interface.
type item struct {
	msg *model.Message
}

func (i item) FilterValue() string {
	return i.msg.Header.Subject + " " + i.msg.Header.FromAddress
}

func (i item) Title() string {
	subject := i.msg.Header.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return subject
}

func (i item) Description() string {
	from := i.msg.Header.FromName
	if from == "" {
		from = i.msg.Header.FromAddress
	}
	return fmt.Sprintf("%s · %s", from, relativeTime(i.msg.Header.Date))
}

// itemDelegate renders a message on a single line: date, sender, subject
// and an attachment count badge.
type itemDelegate struct{}

func (d itemDelegate) Height() int  { return 1 }
func (d itemDelegate) Spacing() int { return 0 }

func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	it, ok := listItem.(item)
	if !ok {
		return
	}

	from := it.msg.Header.FromName
	if from == "" {
		from = it.msg.Header.FromAddress
	}
	line := fmt.Sprintf("%-10s  %-24s  %s", relativeTime(it.msg.Header.Date), truncate(from, 24), it.Title())
	if n := len(it.msg.Attachments()); n > 0 {
		line += "  " + theme.AttachmentStyle.Render(fmt.Sprintf("📎%d", n))
	}

	if index == m.Index() {
		fmt.Fprint(w, theme.SelectedItemStyle.Render(line))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render(line))
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// relativeTime renders a compact age for the list line.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// sortItems orders messages newest first, breaking ties by UID.
func sortItems(items []list.Item) {
	sort.Slice(items, func(a, b int) bool {
		ma, mb := items[a].(item).msg, items[b].(item).msg
		if !ma.Header.Date.Equal(mb.Header.Date) {
			return ma.Header.Date.After(mb.Header.Date)
		}
		return ma.UID > mb.UID
	})
}
