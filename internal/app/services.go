package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/horken7/your-mail-buddy/internal/analysis"
	"github.com/horken7/your-mail-buddy/internal/credential"
	"github.com/horken7/your-mail-buddy/internal/mailbox"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/session"
)

// Services are the mail and analysis collaborators a session drives.
type Services struct {
	Mailbox  session.Mailbox
	Sender   session.Sender
	Analyzer session.Analyzer
}

// IncompleteError lists what the user still has to fill in.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "settings incomplete: " + strings.Join(e.Missing, ", ")
}

// BuildServices creates the IMAP client, SMTP sender and analyzer from
// cfg. Secrets come from the environment or the keyring.
func BuildServices(cfg *model.AppConfig, logger *log.Logger) (*Services, error) {
	missing := cfg.MissingFields()

	password, err := credential.Resolve(credential.EmailPassword, credential.EmailPasswordEnv)
	if err != nil {
		missing = append(missing, "email password")
	}
	apiKey, err := credential.Resolve(credential.OpenAIAPIKey, credential.OpenAIAPIKeyEnv)
	if err != nil {
		missing = append(missing, "OpenAI API key")
	}
	if len(missing) > 0 {
		return nil, &IncompleteError{Missing: missing}
	}

	imapAccount, smtpAccount := mailAccounts(cfg.Mailbox, password)

	jobs := analysis.NewAssistantsClient(
		cfg.Analysis.BaseURL,
		apiKey,
		cfg.Analysis.AssistantID,
		cfg.Analysis.RequestTimeout(),
	)

	return &Services{
		Mailbox: mailbox.NewIMAPClient(imapAccount, logger),
		Sender:  mailbox.NewSender(smtpAccount, logger),
		Analyzer: analysis.NewAnalyzer(jobs, analysis.Options{
			MaxAttempts:  cfg.Analysis.MaxAttempts,
			PollInterval: cfg.Analysis.PollInterval(),
			RetryBackoff: cfg.Analysis.RetryBackoff(),
			Logger:       logger,
		}),
	}, nil
}

// mailAccounts splits the mailbox settings into the IMAP and SMTP logins.
// Both use the same account; host, port and TLS mode are per server.
func mailAccounts(mb model.MailboxConfig, password string) (imap, smtp mailbox.Account) {
	imap = mailbox.Account{
		Host:     mb.IMAPHost,
		Port:     mb.IMAPPort,
		Username: mb.Account,
		Password: password,
		TLS:      mb.TLS,
	}
	smtp = imap
	smtp.Host = mb.SMTPHost
	smtp.Port = mb.SMTPPort
	smtp.TLS = mb.SMTPTLS
	return imap, smtp
}

// servicesBuiltMsg carries the outcome of configureSession.
type servicesBuiltMsg struct {
	services *Services
	err      error
}

// configureSession builds the collaborators off the UI goroutine; the
// keyring lookup may block on an OS prompt.
func (m *Model) configureSession() tea.Cmd {
	cfg := m.cfg
	build := m.build
	logger := m.logger
	return func() tea.Msg {
		svc, err := build(cfg, logger)
		if err != nil {
			logger.Warn("session not configured", "err", err)
			return servicesBuiltMsg{err: fmt.Errorf("configuring session: %w", err)}
		}
		return servicesBuiltMsg{services: svc}
	}
}
