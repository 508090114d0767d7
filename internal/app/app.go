package app

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/horken7/your-mail-buddy/internal/keys"
	"github.com/horken7/your-mail-buddy/internal/logging"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/runner"
	"github.com/horken7/your-mail-buddy/internal/session"
	"github.com/horken7/your-mail-buddy/internal/theme"
	"github.com/horken7/your-mail-buddy/internal/ui"
	"github.com/horken7/your-mail-buddy/internal/ui/command"
	"github.com/horken7/your-mail-buddy/internal/ui/detail"
	helpview "github.com/horken7/your-mail-buddy/internal/ui/help"
	"github.com/horken7/your-mail-buddy/internal/ui/inbox"
	"github.com/horken7/your-mail-buddy/internal/ui/settings"
)

const appTitle = "Mail Buddy"

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewDetail
	ViewSettings
	ViewHelp
	ViewCommand
)

// BuildFunc creates the session collaborators from a configuration.
type BuildFunc func(cfg *model.AppConfig, logger *log.Logger) (*Services, error)

// Options wires the root model.
type Options struct {
	Config     *model.AppConfig
	ConfigPath string
	Session    *session.Session
	Runner     *runner.Runner
	Logger     *log.Logger

	// Build defaults to BuildServices.
	Build BuildFunc
}

// Model is the root Bubble Tea model: view routing, the status bar and
// the bridge to the background runner.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ready        bool

	cfg        *model.AppConfig
	configPath string
	session    *session.Session
	runner     *runner.Runner
	build      BuildFunc
	logger     *log.Logger
	keys       *keys.KeyMap

	inbox    inbox.Model
	detail   detail.Model
	settings settings.Model
	help     helpview.Model
	command  command.Model

	notice     model.Notice
	progress   runner.ProgressMsg
	configured bool
}

// New creates the root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	build := opts.Build
	if build == nil {
		build = BuildServices
	}

	return Model{
		currentView: ViewInbox,
		cfg:         opts.Config,
		configPath:  opts.ConfigPath,
		session:     opts.Session,
		runner:      opts.Runner,
		build:       build,
		logger:      logging.OrDiscard(opts.Logger),
		keys:        k,
		inbox:       inbox.New(opts.Session, k, 80, 22),
		detail:      detail.New(k, 80, 22),
		settings:    settings.New(opts.Config, opts.ConfigPath, 80, 22),
		help:        helpview.New(k, 80, 22),
		command:     command.New(80, 22),
	}
}

// Init loads the batch, starts listening to the runner and builds the
// mail and analysis clients.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.inbox.Init(),
		m.runner.WaitForNext(),
		m.configureSession(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.settings.SetSize(w, h)
		m.help.SetSize(w, h)
		m.command.SetSize(w, h)
		return m, nil

	case servicesBuiltMsg:
		return m.handleServices(msg)

	case runner.NoticeMsg:
		m.notice = msg.Notice
		return m, m.runner.WaitForNext()

	case runner.ProgressMsg:
		m.progress = msg
		return m, tea.Batch(m.inbox.Load(), m.runner.WaitForNext())

	case runner.CycleDoneMsg:
		m.progress = runner.ProgressMsg{}
		if msg.Err == nil && msg.Count > 0 {
			m.setNotice(model.NoticeSuccess, fmt.Sprintf("Analyzed %d emails.", msg.Count))
		}
		return m, tea.Batch(m.inbox.Load(), m.runner.WaitForNext())

	case runner.ReplyDoneMsg:
		m.detail.SetSending(false)
		if msg.Sent && m.currentView == ViewDetail && m.detail.CurrentID() == msg.ID {
			m.currentView = ViewInbox
		}
		return m, tea.Batch(m.inbox.Load(), m.runner.WaitForNext())

	case inbox.SelectedMsg:
		m.detail.SetItem(msg.Item)
		m.previousView = m.currentView
		m.currentView = ViewDetail
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewInbox
		return m, nil

	case detail.SendMsg:
		cmd := m.runner.Reply(msg.ID, msg.Draft)
		if cmd == nil {
			m.detail.SetSending(true)
			m.setNotice(model.NoticeInfo, "Sending reply...")
		}
		return m, cmd

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case settings.SavedMsg:
		m.cfg = msg.Config
		m.settings.SetConfig(msg.Config)
		m.configured = false
		m.currentView = ViewInbox
		m.setNotice(model.NoticeSuccess, "Settings saved.")
		return m, m.configureSession()

	case settings.CancelMsg:
		m.currentView = ViewInbox
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleGlobalKey(msg); handled {
			return next, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleServices attaches freshly built collaborators, or sends the user
// to the settings form when something is missing.
func (m Model) handleServices(msg servicesBuiltMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.configured = false
		var incomplete *IncompleteError
		if errors.As(msg.err, &incomplete) {
			m.setNotice(model.NoticeWarning, "Finish the settings to start: "+incomplete.Error())
			cmd := m.openSettings()
			return m, cmd
		}
		m.setNotice(model.NoticeError, msg.err.Error())
		return m, nil
	}

	svc := msg.services
	m.session.Reconfigure(svc.Mailbox, svc.Sender, svc.Analyzer)
	m.runner.Attach(m.session)
	m.configured = true
	m.logger.Info("session configured", "account", m.cfg.Mailbox.Account)
	return m, nil
}

// handleGlobalKey processes keys that work across views. Views with a
// focused text input get every key except ctrl+c.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, m.quit(), true
	}
	if m.capturesInput() {
		return m, nil, false
	}

	switch msg.String() {
	case "q":
		if m.currentView == ViewInbox {
			return m, m.quit(), true
		}

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		cmd := m.command.Focus()
		return m, cmd, true

	case "f":
		if m.currentView == ViewInbox {
			cmd := m.fetch()
			return m, cmd, true
		}

	case "c":
		if m.currentView == ViewInbox {
			cmd := m.openSettings()
			return m, cmd, true
		}

	case "esc":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
	}
	return m, nil, false
}

// capturesInput reports whether the active view owns the keyboard.
func (m Model) capturesInput() bool {
	switch m.currentView {
	case ViewSettings, ViewCommand:
		return true
	case ViewDetail:
		return m.detail.Editing()
	}
	return false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewSettings:
		m.settings, cmd = m.settings.Update(msg)
	case ViewHelp:
		m.help, cmd = m.help.Update(msg)
	case ViewCommand:
		m.command, cmd = m.command.Update(msg)
	}

	// Loaded batches go to the inbox whatever view is showing.
	if loaded, ok := msg.(inbox.LoadedMsg); ok && m.currentView != ViewInbox {
		m.inbox, _ = m.inbox.Update(loaded)
		if loaded.Err != nil {
			m.setNotice(model.NoticeError, "Failed to load emails: "+loaded.Err.Error())
		}
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(appTitle, m.runnerStatus())
	statusBar := m.layout.RenderStatusBar(m.statusLine(), m.fetchCounter())
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewInbox:
		return m.inbox.View()
	case ViewDetail:
		return m.detail.View()
	case ViewSettings:
		return m.settings.View()
	case ViewHelp:
		return m.help.View()
	case ViewCommand:
		return m.command.View()
	default:
		return ""
	}
}

// runnerStatus is the right-hand side of the header.
func (m Model) runnerStatus() string {
	if !m.configured {
		return "not configured"
	}
	state, err := m.runner.State()
	if state == runner.StateAnalyzing && m.progress.Total > 0 {
		return fmt.Sprintf("analyzing %d/%d", m.progress.Done, m.progress.Total)
	}
	if state == runner.StateError && err != nil {
		return "last run failed"
	}
	return state.String()
}

// statusLine shows the latest notice, or key hints when there is none.
func (m Model) statusLine() string {
	if m.notice.Text != "" {
		return theme.NoticeStyle(m.notice.Level).Render(m.notice.Text)
	}
	return theme.StatusBarStyle.Render(m.keyHints())
}

func (m Model) fetchCounter() string {
	return fmt.Sprintf("fetches left: %d", m.session.RemainingFetches())
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		if m.detail.Editing() {
			return "ctrl+s send | esc stop editing"
		}
		return "e edit reply | ctrl+s send | esc back | j/k scroll"
	case ViewSettings:
		return "enter next | shift+tab back | esc cancel"
	default:
		return "f fetch | enter open | c settings | : command | ? help | q quit"
	}
}

func (m *Model) setNotice(level model.NoticeLevel, text string) {
	m.notice = model.Notice{Level: level, Text: text}
}

// fetch starts a fetch+analyze cycle and clears the previous notice.
func (m *Model) fetch() tea.Cmd {
	if !m.configured {
		m.setNotice(model.NoticeWarning, "Finish the settings first (press c).")
		return nil
	}
	cmd := m.runner.Fetch()
	if cmd == nil {
		m.setNotice(model.NoticeInfo, "Fetching unread emails...")
	}
	return cmd
}

func (m *Model) openSettings() tea.Cmd {
	if m.runner.Busy() {
		m.setNotice(model.NoticeWarning, "Wait for the current operation to finish before changing settings.")
		return nil
	}
	m.previousView = m.currentView
	m.currentView = ViewSettings
	return m.settings.Init()
}

func (m *Model) quit() tea.Cmd {
	m.runner.Stop()
	return tea.Quit
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "fetch", "f":
		m.currentView = ViewInbox
		return m.fetch()
	case "settings", "config":
		return m.openSettings()
	case "reset":
		if m.runner.Busy() {
			m.setNotice(model.NoticeWarning, runner.ErrBusy.Error())
			return nil
		}
		if err := m.session.Reset(context.Background()); err != nil {
			m.setNotice(model.NoticeError, "Failed to reset session: "+err.Error())
			return nil
		}
		m.currentView = ViewInbox
		m.setNotice(model.NoticeInfo, "Started a new session.")
		return m.inbox.Load()
	case "help":
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil
	case "quit", "q":
		return m.quit()
	default:
		m.setNotice(model.NoticeWarning, fmt.Sprintf("Unknown command %q", cmd))
		return nil
	}
}
