package msglist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailgrab/internal/keys"
	"github.com/nhle/mailgrab/internal/model"
	"github.com/nhle/mailgrab/internal/theme"
)

// SelectedMsg is sent when a user selects a message to view.
type SelectedMsg struct {
	UID model.UID
}

// Model is the message list view component.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	byUID  map[model.UID]*model.Message
	width  int
	height int
}

// New creates a new message list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, itemDelegate{}, width, height-2)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		byUID:  make(map[model.UID]*model.Message),
		width:  width,
		height: height,
	}
}

// AddMessages merges newly decoded messages into the list, newest first.
func (m *Model) AddMessages(msgs []*model.Message) tea.Cmd {
	for _, msg := range msgs {
		m.byUID[msg.UID] = msg
	}

	items := make([]list.Item, 0, len(m.byUID))
	for _, msg := range m.byUID {
		items = append(items, item{msg: msg})
	}
	sortItems(items)
	return m.list.SetItems(items)
}

// Message returns the stored message for a UID.
func (m *Model) Message(uid model.UID) (*model.Message, bool) {
	msg, ok := m.byUID[uid]
	return msg, ok
}

// Remove drops a message from the list (after delete/archive).
func (m *Model) Remove(uid model.UID) tea.Cmd {
	delete(m.byUID, uid)

	items := make([]list.Item, 0, len(m.byUID))
	for _, msg := range m.byUID {
		items = append(items, item{msg: msg})
	}
	sortItems(items)
	return m.list.SetItems(items)
}

// SetSize resizes the underlying list.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}

// Init returns the initial command for the list view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && !m.list.SettingFilter() {
		if key.Matches(keyMsg, m.keys.Select) {
			if it, ok := m.list.SelectedItem().(item); ok {
				uid := it.msg.UID
				return m, func() tea.Msg { return SelectedMsg{UID: uid} }
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list view.
func (m Model) View() string {
	return m.list.View()
}

// Selected returns the currently focused message, if any.
func (m Model) Selected() (*model.Message, bool) {
	it, ok := m.list.SelectedItem().(item)
	if !ok {
		return nil, false
	}
	return it.msg, true
}
