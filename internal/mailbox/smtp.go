package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/horken7/your-mail-buddy/internal/logging"
)

// Sender submits replies over an authenticated SMTP session.
type Sender struct {
	account Account
	logger  *log.Logger

	insecure bool
	now      func() time.Time
}

// NewSender creates a new SMTP sender. The account's username is also the
// From address of every reply.
func NewSender(account Account, logger *log.Logger) *Sender {
	return &Sender{
		account: account,
		logger:  logging.OrDiscard(logger).With("component", "smtp"),
		now:     time.Now,
	}
}

// SendReply sends body to the given address as a single text/plain message
// that reuses subject unchanged. No threading headers are set. The SMTP
// session is closed on every path.
func (s *Sender) SendReply(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return &SendError{To: to, Err: err}
	}

	from := s.account.Username

	var msg bytes.Buffer
	if err := ComposeReply(&msg, from, to, subject, body, s.now()); err != nil {
		return &SendError{To: to, Err: err}
	}

	client, err := s.dial()
	if err != nil {
		return &SendError{To: to, Err: err}
	}
	defer client.Close()

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stopClose()

	auth := sasl.NewPlainClient("", s.account.Username, s.account.Password)
	if err := client.Auth(auth); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) && smtpErr.Code == 535 {
			return &SendError{To: to, Err: &AuthError{
				Server: s.account.addr(), Account: s.account.Username, Err: err,
			}}
		}
		return &SendError{To: to, Err: fmt.Errorf("SMTP auth: %w", err)}
	}

	if err := client.SendMail(from, []string{to}, &msg); err != nil {
		return &SendError{To: to, Err: fmt.Errorf("SMTP send: %w", err)}
	}

	if err := client.Quit(); err != nil {
		// The message was accepted; a failed QUIT is not a send failure.
		s.logger.Debug("smtp quit failed", "err", err)
	}

	s.logger.Info("reply sent", "to", to)
	return nil
}

func (s *Sender) dial() (*smtp.Client, error) {
	addr := s.account.addr()
	tlsConfig := &tls.Config{ServerName: s.account.Host}

	var client *smtp.Client
	var err error
	switch {
	case s.insecure:
		client, err = smtp.Dial(addr)
	case s.account.TLS:
		client, err = smtp.DialTLS(addr, tlsConfig)
	default:
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return nil, &ConnectivityError{Server: addr, Err: err}
	}
	return client, nil
}

// ComposeReply writes a single-part text/plain UTF-8 message to w.
func ComposeReply(w io.Writer, from, to, subject, body string, date time.Time) error {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	mw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(mw, body); err != nil {
		mw.Close()
		return fmt.Errorf("writing message body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing message writer: %w", err)
	}
	return nil
}
