// Package detail renders a single decoded message: headers, body text and
// the list of materialized attachments.
package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailgrab/internal/keys"
	"github.com/nhle/mailgrab/internal/model"
	"github.com/nhle/mailgrab/internal/theme"
)

// BackMsg is sent when the user leaves the detail view.
type BackMsg struct{}

// Model is the message detail view component.
type Model struct {
	viewport viewport.Model
	keys     *keys.KeyMap
	msg      *model.Message
	baseURI  string
	showHTML bool
	width    int
	height   int
}

// New creates a new detail model. baseURI is prepended to attachment file
// names when rewriting inline references in the HTML body.
func New(k *keys.KeyMap, baseURI string, width, height int) Model {
	vp := viewport.New(width, height-2)
	return Model{
		viewport: vp,
		keys:     k,
		baseURI:  baseURI,
		width:    width,
		height:   height,
	}
}

// SetMessage loads a decoded message into the view.
func (m *Model) SetMessage(msg *model.Message) {
	m.msg = msg
	m.showHTML = false
	m.viewport.SetContent(m.render())
	m.viewport.GotoTop()
}

// SetSize resizes the viewport.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.msg != nil {
		m.viewport.SetContent(m.render())
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }
		case key.Matches(msg, m.keys.ToggleHTML):
			if m.msg != nil && m.msg.TextHTML != "" {
				m.showHTML = !m.showHTML
				m.viewport.SetContent(m.render())
				m.viewport.GotoTop()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.msg == nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			theme.HelpStyle.Render("No message selected"))
	}
	return m.viewport.View()
}

// Message returns the message currently shown, if any.
func (m Model) Message() (*model.Message, bool) {
	if m.msg == nil {
		return nil, false
	}
	return m.msg, true
}

func (m Model) render() string {
	var b strings.Builder

	hdr := m.msg.Header
	b.WriteString(theme.HeaderStyle.Render(orPlaceholder(hdr.Subject, "(no subject)")))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("From: %s\n", formatAddress(hdr.FromName, hdr.FromAddress)))
	if len(hdr.To) > 0 {
		b.WriteString(fmt.Sprintf("To:   %s\n", m.msg.ToString()))
	}
	if len(hdr.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc:   %s\n", joinAddresses(hdr.Cc)))
	}
	if !hdr.Date.IsZero() {
		b.WriteString(fmt.Sprintf("Date: %s\n", hdr.Date.Format("Mon, 2 Jan 2006 15:04")))
	}

	b.WriteString("\n")
	if m.showHTML {
		b.WriteString(theme.HelpStyle.Render("[html source]"))
		b.WriteString("\n\n")
		b.WriteString(m.msg.ResolveInlineHTML(m.baseURI))
	} else {
		body := m.msg.TextPlain
		if body == "" && m.msg.TextHTML != "" {
			body = theme.HelpStyle.Render("(HTML only; press h to view source)")
		}
		b.WriteString(body)
	}

	if atts := m.msg.Attachments(); len(atts) > 0 {
		b.WriteString("\n\n")
		b.WriteString(theme.AttachmentStyle.Render(fmt.Sprintf("Attachments (%d)", len(atts))))
		b.WriteString("\n")
		for _, att := range atts {
			path := att.FilePath
			if path == "" {
				path = theme.ErrorStyle.Render("(not saved)")
			}
			b.WriteString(fmt.Sprintf("  %s  %s\n", att.Name, path))
		}
	}

	return b.String()
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func formatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

func joinAddresses(addrs []model.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
