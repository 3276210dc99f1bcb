// Package setup implements the first-run account form.
package setup

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/nhle/mailgrab/internal/credential"
	"github.com/nhle/mailgrab/internal/model"
)

// DoneMsg is sent when the account form is saved or aborted.
type DoneMsg struct {
	Config  *model.AppConfig
	Aborted bool
}

// Model collects IMAP account settings with a huh form, stores the password
// in the system keyring and writes the config file.
type Model struct {
	form       *huh.Form
	configPath string
	cfg        *model.AppConfig

	// huh binds form fields to these.
	formHost       string
	formPort       string
	formTLS        bool
	formUsername   string
	formPassword   string
	formMailbox    string
	formStorageDir string
	formBaseURI    string
	formMarkSeen   bool

	statusMsg string
	width     int
	height    int
}

// New creates a setup model pre-filled from an existing config.
func New(configPath string, cfg *model.AppConfig, width, height int) Model {
	m := Model{
		configPath:     configPath,
		cfg:            cfg,
		formHost:       cfg.Account.Host,
		formPort:       cfg.Account.Port,
		formTLS:        cfg.Account.TLS,
		formUsername:   cfg.Account.Username,
		formMailbox:    cfg.Account.Mailbox,
		formStorageDir: cfg.Decode.StorageDir,
		formBaseURI:    cfg.Decode.BaseURI,
		formMarkSeen:   cfg.Decode.MarkSeen,
		width:          width,
		height:         height,
	}
	m.form = m.buildForm()
	return m
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&m.formHost).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&m.formPort).
				Validate(validatePort),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Implicit TLS; answering No upgrades with STARTTLS").
				Affirmative("Yes").
				Negative("No").
				Value(&m.formTLS),
			huh.NewInput().
				Title("Username").
				Description("Email account username").
				Placeholder("user@example.com").
				Value(&m.formUsername).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Account password or app password (stored in the system keyring)").
				EchoMode(huh.EchoModePassword).
				Value(&m.formPassword).
				Validate(validateRequired("Password")),
			huh.NewInput().
				Title("Mailbox").
				Description("Folder to poll").
				Placeholder("INBOX").
				Value(&m.formMailbox),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Attachment Directory").
				Description("Where attachment files are written; leave empty to skip writing").
				Placeholder("~/mail-attachments").
				Value(&m.formStorageDir),
			huh.NewInput().
				Title("Base URI").
				Description("Prefix for inline image links in rendered HTML").
				Placeholder("http://localhost:8080/files").
				Value(&m.formBaseURI),
			huh.NewConfirm().
				Title("Mark As Read").
				Description("Mark messages seen on the server after fetching").
				Affirmative("Yes").
				Negative("No").
				Value(&m.formMarkSeen),
		),
	).WithWidth(m.formWidth())
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update drives the form and saves the configuration on completion.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if wsMsg, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = wsMsg.Width
		m.height = wsMsg.Height
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m.save()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return DoneMsg{Aborted: true} }
	}

	return m, cmd
}

func (m Model) save() (Model, tea.Cmd) {
	cfg := *m.cfg
	cfg.Account.Host = strings.TrimSpace(m.formHost)
	cfg.Account.Port = strings.TrimSpace(m.formPort)
	cfg.Account.TLS = m.formTLS
	cfg.Account.Username = strings.TrimSpace(m.formUsername)
	cfg.Account.Mailbox = strings.TrimSpace(m.formMailbox)
	if cfg.Account.Mailbox == "" {
		cfg.Account.Mailbox = "INBOX"
	}
	cfg.Decode.StorageDir = strings.TrimSpace(m.formStorageDir)
	cfg.Decode.BaseURI = strings.TrimSpace(m.formBaseURI)
	cfg.Decode.MarkSeen = m.formMarkSeen

	credKey := credential.AccountKey(cfg.Account.Username, cfg.Account.Host)
	if err := credential.Set(credKey, m.formPassword); err != nil {
		m.statusMsg = fmt.Sprintf("Error saving credential: %v", err)
		return m, nil
	}

	if err := model.SaveConfig(m.configPath, &cfg); err != nil {
		m.statusMsg = fmt.Sprintf("Error saving config: %v", err)
		return m, nil
	}

	saved := cfg
	return m, func() tea.Msg { return DoneMsg{Config: &saved} }
}

// View renders the form.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.form.View())
	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.statusMsg)
	}
	return b.String()
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}
