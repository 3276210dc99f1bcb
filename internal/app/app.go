// Package app wires the mailbox poller, decoder and store into the root
// Bubble Tea model and routes messages between views.
package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailgrab/internal/credential"
	"github.com/nhle/mailgrab/internal/decode"
	"github.com/nhle/mailgrab/internal/keys"
	"github.com/nhle/mailgrab/internal/mailbox"
	"github.com/nhle/mailgrab/internal/model"
	"github.com/nhle/mailgrab/internal/store"
	appsync "github.com/nhle/mailgrab/internal/sync"
	"github.com/nhle/mailgrab/internal/ui"
	"github.com/nhle/mailgrab/internal/ui/detail"
	helpview "github.com/nhle/mailgrab/internal/ui/help"
	"github.com/nhle/mailgrab/internal/ui/msglist"
	"github.com/nhle/mailgrab/internal/ui/setup"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewSetup ViewState = iota
	ViewList
	ViewDetail
	ViewHelp
)

// connectedMsg is sent once the IMAP connection is established.
type connectedMsg struct {
	client *mailbox.Client
}

// connectErrMsg is sent when establishing the IMAP connection failed.
type connectErrMsg struct {
	err  error
	auth bool
}

// actionResultMsg carries the outcome of a server-side message action
// (mark seen, delete, archive).
type actionResultMsg struct {
	uid     model.UID
	action  string
	removed bool
	err     error
}

// Model is the root Bubble Tea model that manages view routing, layout
// and the mailbox connection lifecycle.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	configPath   string
	cfg          *model.AppConfig
	store        store.Store
	keys         *keys.KeyMap

	client *mailbox.Client
	poller *appsync.Poller

	msgList    msglist.Model
	detailView detail.Model
	helpView   helpview.Model
	setupView  setup.Model

	ready     bool
	statusMsg string
}

// New creates a new root application model. The connection is established
// in Init; when the account is not configured yet, the setup form is shown
// first.
func New(configPath string, cfg *model.AppConfig, s store.Store) Model {
	k := keys.DefaultKeyMap()

	initial := ViewList
	if cfg.Account.Host == "" || cfg.Account.Username == "" {
		initial = ViewSetup
	}

	return Model{
		currentView: initial,
		configPath:  configPath,
		cfg:         cfg,
		store:       s,
		keys:        k,
		msgList:     msglist.New(k, 80, 24),
		detailView:  detail.New(k, cfg.Decode.BaseURI, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		setupView:   setup.New(configPath, cfg, 80, 24),
	}
}

// Init connects to the mailbox, or shows the setup form on first run.
func (m Model) Init() tea.Cmd {
	if m.currentView == ViewSetup {
		return m.setupView.Init()
	}
	return m.connect()
}

// connect returns a command that dials the IMAP server using the keyring
// password for the configured account.
func (m Model) connect() tea.Cmd {
	cfg := *m.cfg
	return func() tea.Msg {
		password, err := credential.Get(credential.AccountKey(cfg.Account.Username, cfg.Account.Host))
		if err != nil {
			return connectErrMsg{err: fmt.Errorf("loading credential: %w", err), auth: true}
		}

		client, err := mailbox.Dial(context.Background(), cfg.Account, password)
		if err != nil {
			return connectErrMsg{err: err, auth: mailbox.IsAuthError(err)}
		}
		return connectedMsg{client: client}
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.msgList.SetSize(contentWidth, contentHeight)
		m.detailView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		// Forward to the active view so huh forms can calculate layout.
		return m.updateActiveView(msg)

	case connectedMsg:
		m.client = msg.client
		m.statusMsg = ""
		decoder := decode.NewDecoder(m.client, m.cfg.Decode, m.store)
		m.poller = appsync.New(m.client, decoder, m.store, *m.cfg)
		return m, m.poller.Start()

	case connectErrMsg:
		m.statusMsg = fmt.Sprintf("connection failed: %v", msg.err)
		if msg.auth {
			// Credentials need fixing; drop into the account form.
			m.previousView = m.currentView
			m.currentView = ViewSetup
			m.setupView = setup.New(m.configPath, m.cfg, m.layout.Width, m.layout.Height)
			return m, m.setupView.Init()
		}
		return m, nil

	case setup.DoneMsg:
		if msg.Aborted {
			if m.client == nil {
				return m, tea.Quit
			}
			m.currentView = ViewList
			return m, nil
		}
		m.cfg = msg.Config
		m.currentView = ViewList
		m.detailView = detail.New(m.keys, m.cfg.Decode.BaseURI, m.layout.ContentWidth(), m.layout.ContentHeight())
		if m.client != nil {
			m.client.Close()
			m.client = nil
		}
		if m.poller != nil {
			m.poller.Stop()
			m.poller = nil
		}
		return m, m.connect()

	case appsync.MessagesMsg:
		m.statusMsg = ""
		cmd := m.msgList.AddMessages(msg.Messages)
		return m, tea.Batch(cmd, m.poller.WaitForNextResult())

	case appsync.SyncErrorMsg:
		m.statusMsg = fmt.Sprintf("sync failed: %v", msg.Err)
		if msg.Auth {
			m.previousView = m.currentView
			m.currentView = ViewSetup
			m.setupView = setup.New(m.configPath, m.cfg, m.layout.Width, m.layout.Height)
			return m, tea.Batch(m.setupView.Init(), m.poller.WaitForNextResult())
		}
		return m, m.poller.WaitForNextResult()

	case msglist.SelectedMsg:
		message, ok := m.msgList.Message(msg.UID)
		if !ok {
			return m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detailView.SetMessage(message)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case actionResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("%s: ok", msg.action)
		if msg.removed {
			if m.currentView == ViewDetail {
				m.currentView = ViewList
			}
			return m, m.msgList.Remove(msg.uid)
		}
		return m, nil

	case tea.KeyMsg:
		if mdl, cmd, handled := m.handleGlobalKeys(msg); handled {
			return mdl, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that work regardless of the focused view.
// The setup form owns all input while it is active.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if m.currentView == ViewSetup {
		if msg.String() == "ctrl+c" {
			m.shutdown()
			return m, tea.Quit, true
		}
		return m, nil, false
	}

	switch msg.String() {
	case "ctrl+c":
		m.shutdown()
		return m, tea.Quit, true

	case "q":
		if m.currentView == ViewList {
			m.shutdown()
			return m, tea.Quit, true
		}

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case "r":
		if m.currentView == ViewList && m.poller != nil {
			m.statusMsg = "refreshing..."
			return m, m.poller.Refresh(), true
		}

	case "m":
		if message, ok := m.selectedMessage(); ok {
			return m, m.markSeen(message.UID), true
		}

	case "x":
		if message, ok := m.selectedMessage(); ok {
			return m, m.deleteMessage(message.UID), true
		}

	case "a":
		if m.currentView == ViewList {
			if message, ok := m.msgList.Selected(); ok {
				return m, m.archiveMessage(message.UID), true
			}
		}

	case "y":
		if m.currentView == ViewDetail {
			if message, ok := m.detailView.Message(); ok {
				if atts := message.Attachments(); len(atts) > 0 && atts[0].FilePath != "" {
					m.statusMsg = atts[0].FilePath
					return m, nil, true
				}
			}
			m.statusMsg = "no saved attachments"
			return m, nil, true
		}
	}

	return m, nil, false
}

// selectedMessage returns the message targeted by a server action: the
// focused list entry, or the open message in the detail view.
func (m Model) selectedMessage() (*model.Message, bool) {
	switch m.currentView {
	case ViewList:
		return m.msgList.Selected()
	case ViewDetail:
		return m.detailView.Message()
	}
	return nil, false
}

func (m Model) markSeen(uid model.UID) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		if client == nil {
			return actionResultMsg{uid: uid, action: "mark seen", err: fmt.Errorf("not connected")}
		}
		err := client.MarkSeen(context.Background(), uid, true)
		return actionResultMsg{uid: uid, action: "mark seen", err: err}
	}
}

func (m Model) deleteMessage(uid model.UID) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		if client == nil {
			return actionResultMsg{uid: uid, action: "delete", err: fmt.Errorf("not connected")}
		}
		err := client.Delete(context.Background(), uid)
		return actionResultMsg{uid: uid, action: "delete", removed: err == nil, err: err}
	}
}

func (m Model) archiveMessage(uid model.UID) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		if client == nil {
			return actionResultMsg{uid: uid, action: "archive", err: fmt.Errorf("not connected")}
		}
		err := client.Move(context.Background(), uid, "Archive")
		return actionResultMsg{uid: uid, action: "archive", removed: err == nil, err: err}
	}
}

// shutdown stops the poller and closes the connection.
func (m Model) shutdown() {
	if m.poller != nil {
		m.poller.Stop()
	}
	if m.client != nil {
		m.client.Close()
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewSetup:
		m.setupView, cmd = m.setupView.Update(msg)
	case ViewList:
		m.msgList, cmd = m.msgList.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("mailgrab", m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewSetup:
		return m.setupView.View()
	case ViewList:
		return m.msgList.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the poller state.
func (m Model) syncStatus() string {
	if m.client == nil {
		return "connecting"
	}
	if m.poller == nil {
		return "idle"
	}
	status := m.poller.Status()
	switch status.State {
	case appsync.SyncRunning:
		return "syncing"
	case appsync.SyncError:
		return "sync error"
	default:
		if !status.LastSync.IsZero() {
			return "synced " + status.LastSync.Format("15:04")
		}
		return "idle"
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusMsg != "" {
		return m.statusMsg
	}

	switch m.currentView {
	case ViewSetup:
		return "enter next | esc cancel"
	case ViewDetail:
		return "esc back | h html | m seen | x delete | y path | j/k scroll"
	case ViewHelp:
		return "? close help"
	default:
		return "q quit | ? help | r refresh | enter open | / search"
	}
}
