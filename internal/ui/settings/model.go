package settings

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/horken7/your-mail-buddy/internal/credential"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/theme"
)

// SavedMsg is sent once the settings were written. Config is the new
// configuration; the app rebuilds its mail and analysis clients from it.
type SavedMsg struct {
	Config *model.AppConfig
}

// CancelMsg is sent when the form is aborted.
type CancelMsg struct{}

// saveFailedMsg keeps the form open with an error line.
type saveFailedMsg struct {
	err error
}

// SecretSetter stores a secret under key.
type SecretSetter func(key, value string) error

// Model is the settings form: mailbox server, account, password and the
// analysis credentials. Secrets go to the keyring, the rest to the config
// file.
type Model struct {
	form       *huh.Form
	cfg        model.AppConfig
	configPath string
	setSecret  SecretSetter
	status     string
	saving     bool
	width      int
	height     int

	// Heap-allocated so the form's value pointers survive Model copies.
	f *fields
}

type fields struct {
	imapHost    string
	imapPort    string
	smtpHost    string
	smtpPort    string
	account     string
	password    string
	apiKey      string
	assistantID string
	imapTLS     bool
	smtpTLS     bool
}

// New creates the settings view for cfg, saved to configPath.
func New(cfg *model.AppConfig, configPath string, width, height int) Model {
	return Model{
		cfg:        *cfg,
		configPath: configPath,
		setSecret:  credential.Set,
		width:      width,
		height:     height,
		f:          &fields{},
	}
}

// Init rebuilds the form from the current configuration.
func (m *Model) Init() tea.Cmd {
	m.status = ""
	m.saving = false
	m.load()
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the settings form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(saveFailedMsg); ok {
		m.status = fmt.Sprintf("Error saving settings: %v", msg.err)
		m.saving = false
		m.form = m.buildForm()
		return m, m.form.Init()
	}

	if m.form == nil || m.saving {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.saving = true
		return m, m.save()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

func (m *Model) load() {
	mb := m.cfg.Mailbox
	// Secrets are never pre-filled.
	*m.f = fields{
		imapHost:    mb.IMAPHost,
		imapPort:    strconv.Itoa(mb.IMAPPort),
		smtpHost:    mb.SMTPHost,
		smtpPort:    strconv.Itoa(mb.SMTPPort),
		account:     mb.Account,
		imapTLS:     mb.TLS,
		smtpTLS:     mb.SMTPTLS,
		assistantID: m.cfg.Analysis.AssistantID,
	}
}

func (m *Model) buildForm() *huh.Form {
	f := m.f
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("Incoming mail server").
				Placeholder("imap.gmail.com").
				Value(&f.imapHost).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Placeholder("993").
				Value(&f.imapPort).
				Validate(validatePort),
			huh.NewConfirm().
				Title("IMAP over TLS").
				Description("Implicit TLS; STARTTLS when off").
				Affirmative("Yes").
				Negative("No").
				Value(&f.imapTLS),
			huh.NewInput().
				Title("SMTP Host").
				Description("Outgoing mail server").
				Placeholder("smtp.gmail.com").
				Value(&f.smtpHost).
				Validate(validateRequired("SMTP Host")),
			huh.NewInput().
				Title("SMTP Port").
				Placeholder("465").
				Value(&f.smtpPort).
				Validate(validatePort),
			huh.NewConfirm().
				Title("SMTP over TLS").
				Description("Implicit TLS (465); STARTTLS when off (587)").
				Affirmative("Yes").
				Negative("No").
				Value(&f.smtpTLS),
		).Title("Mail server"),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Description("Account used to log in and to send replies").
				Placeholder("you@example.com").
				Value(&f.account).
				Validate(validateEmail),
			huh.NewInput().
				Title("App password").
				Description("Leave empty to keep the stored password").
				EchoMode(huh.EchoModePassword).
				Value(&f.password),
		).Title("Account"),
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant ID").
				Placeholder("asst_...").
				Value(&f.assistantID).
				Validate(validateRequired("Assistant ID")),
			huh.NewInput().
				Title("OpenAI API key").
				Description("Leave empty to keep the stored key").
				EchoMode(huh.EchoModePassword).
				Value(&f.apiKey),
		).Title("Analysis"),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

// apply copies the form fields into a new configuration.
func (m Model) apply() (*model.AppConfig, error) {
	f := m.f
	imapPort, err := strconv.Atoi(strings.TrimSpace(f.imapPort))
	if err != nil {
		return nil, fmt.Errorf("imap port: %w", err)
	}
	smtpPort, err := strconv.Atoi(strings.TrimSpace(f.smtpPort))
	if err != nil {
		return nil, fmt.Errorf("smtp port: %w", err)
	}

	cfg := m.cfg
	cfg.Mailbox.IMAPHost = strings.TrimSpace(f.imapHost)
	cfg.Mailbox.IMAPPort = imapPort
	cfg.Mailbox.SMTPHost = strings.TrimSpace(f.smtpHost)
	cfg.Mailbox.SMTPPort = smtpPort
	cfg.Mailbox.Account = strings.TrimSpace(f.account)
	cfg.Mailbox.TLS = f.imapTLS
	cfg.Mailbox.SMTPTLS = f.smtpTLS
	cfg.Analysis.AssistantID = strings.TrimSpace(f.assistantID)
	return &cfg, nil
}

// save writes secrets then the config file.
func (m Model) save() tea.Cmd {
	cfg, err := m.apply()
	path := m.configPath
	secrets := map[string]string{
		credential.EmailPassword: m.f.password,
		credential.OpenAIAPIKey:  strings.TrimSpace(m.f.apiKey),
	}
	setSecret := m.setSecret

	return func() tea.Msg {
		if err != nil {
			return saveFailedMsg{err: err}
		}
		for key, value := range secrets {
			if value == "" {
				continue
			}
			if err := setSecret(key, value); err != nil {
				return saveFailedMsg{err: fmt.Errorf("storing %s: %w", key, err)}
			}
		}
		if err := model.SaveConfig(path, cfg); err != nil {
			return saveFailedMsg{err: err}
		}
		return SavedMsg{Config: cfg}
	}
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	content := theme.SectionTitleStyle.MarginBottom(1).Render("Settings") + "\n" + m.form.View()
	if m.status != "" {
		content += "\n" + lipgloss.NewStyle().Foreground(theme.ColorRed).Italic(true).Render(m.status)
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(content)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

// SetConfig replaces the configuration the next Init starts from.
func (m *Model) SetConfig(cfg *model.AppConfig) {
	m.cfg = *cfg
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

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return fmt.Errorf("enter a full email address")
	}
	return nil
}
