package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/horken7/your-mail-buddy/internal/analysis"
	"github.com/horken7/your-mail-buddy/internal/logging"
	"github.com/horken7/your-mail-buddy/internal/mailbox"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/store"
)

// User-visible notice texts.
const (
	RateLimitedText = "You have reached the maximum number of fetches allowed in this session. Please try again later."
	NoUnreadText    = "No unread emails found."
	RetryTextFormat = "Slow response due to OpenAI rate limiting. Retrying, %d attempts left..."
)

// ErrRateLimited is returned by Fetch when the session window is used up.
var ErrRateLimited = errors.New("fetch rate limit reached")

// Mailbox fetches unread messages and flags them read.
type Mailbox interface {
	FetchUnread(ctx context.Context, limit int) (*mailbox.FetchResult, error)
	MarkRead(ctx context.Context, id string) error
}

// Sender submits a reply.
type Sender interface {
	SendReply(ctx context.Context, to, subject, body string) error
}

// Analyzer scores one message body.
type Analyzer interface {
	Analyze(ctx context.Context, body string, onRetry analysis.RetryFunc) model.Verdict
}

// Notifier receives user-visible notices.
type Notifier func(model.Notice)

// ProgressFunc reports analysis progress: done of total messages analyzed.
type ProgressFunc func(done, total int)

// Config holds the per-session limits.
type Config struct {
	MaxMessagesPerFetch int
	MaxFetchesPerWindow int
	Window              time.Duration
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Store    store.Store
	Mailbox  Mailbox
	Sender   Sender
	Analyzer Analyzer
	Notify   Notifier
	Logger   *log.Logger

	// Now is the clock used for the rate-limit window. Defaults to time.Now.
	Now func() time.Time
}

// Session holds everything that lives for one interactive session: the
// rate-limit window and the current batch. One fetch, analyze or reply
// cycle runs at a time.
type Session struct {
	ID string

	cfg      Config
	limit    *RateLimit
	store    store.Store
	mailbox  Mailbox
	sender   Sender
	analyzer Analyzer
	notify   Notifier
	logger   *log.Logger
}

// New starts a session with an empty batch and a fresh rate-limit window.
func New(cfg Config, deps Deps) *Session {
	id := uuid.New().String()
	notify := deps.Notify
	if notify == nil {
		notify = func(model.Notice) {}
	}

	return &Session{
		ID:       id,
		cfg:      cfg,
		limit:    NewRateLimit(cfg.MaxFetchesPerWindow, cfg.Window, deps.Now),
		store:    deps.Store,
		mailbox:  deps.Mailbox,
		sender:   deps.Sender,
		analyzer: deps.Analyzer,
		notify:   notify,
		logger:   logging.OrDiscard(deps.Logger).With("session", id[:8]),
	}
}

// Reconfigure swaps the mail and analysis collaborators, e.g. after the
// user changed credentials. The batch and rate-limit window are kept.
func (s *Session) Reconfigure(mb Mailbox, sender Sender, analyzer Analyzer) {
	s.mailbox = mb
	s.sender = sender
	s.analyzer = analyzer
}

// Ready reports whether the mail and analysis collaborators are set.
func (s *Session) Ready() bool {
	return s.mailbox != nil && s.sender != nil && s.analyzer != nil
}

// CheckRateLimit applies the window and reports whether a fetch may
// proceed. It must be called before every fetch attempt.
func (s *Session) CheckRateLimit() bool {
	if s.limit.Allow() {
		return true
	}
	s.logger.Warn("fetch rate limited", "resets_in", s.limit.ResetsIn().Round(time.Second))
	s.notice(model.NoticeWarning, RateLimitedText)
	return false
}

// RemainingFetches reports how many fetches the current window still allows.
func (s *Session) RemainingFetches() int {
	return s.limit.Remaining()
}

// RecordBatch replaces the batch with msgs.
func (s *Session) RecordBatch(ctx context.Context, msgs []model.Message) error {
	return s.store.ReplaceBatch(ctx, msgs)
}

// RecordVerdict attaches the analysis result to one message.
func (s *Session) RecordVerdict(ctx context.Context, id string, v model.Verdict) error {
	return s.store.SetVerdict(ctx, id, v)
}

// Remove drops one message from the batch.
func (s *Session) Remove(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Batch returns the current batch in fetch order.
func (s *Session) Batch(ctx context.Context) ([]model.BatchItem, error) {
	return s.store.Items(ctx)
}

// Ranked returns the current batch, most important first.
func (s *Session) Ranked(ctx context.Context) ([]model.BatchItem, error) {
	return s.store.Ranked(ctx)
}

// Fetch gates on the rate limit and replaces the batch with up to
// MaxMessagesPerFetch unread messages. It returns the batch size. A failed
// fetch leaves the previous batch in place.
func (s *Session) Fetch(ctx context.Context) (int, error) {
	if !s.CheckRateLimit() {
		return 0, ErrRateLimited
	}

	result, err := s.mailbox.FetchUnread(ctx, s.cfg.MaxMessagesPerFetch)
	if err != nil {
		s.logger.Error("fetch failed", "err", err)
		s.notice(model.NoticeError, fetchFailureText(err))
		return 0, err
	}

	for _, skipped := range result.Skipped {
		s.notice(model.NoticeWarning, fmt.Sprintf("Skipped message %s: %v", skipped.ID, skipped.Err))
	}

	if err := s.RecordBatch(ctx, result.Messages); err != nil {
		s.notice(model.NoticeError, "Failed to store fetched emails: "+err.Error())
		return 0, err
	}

	if len(result.Messages) == 0 {
		s.notice(model.NoticeInfo, NoUnreadText)
		return 0, nil
	}

	s.logger.Info("batch recorded", "count", len(result.Messages), "unread", result.Unread)
	return len(result.Messages), nil
}

// AnalyzePending analyzes every batch item that has no verdict yet, one at
// a time in fetch order.
func (s *Session) AnalyzePending(ctx context.Context, progress ProgressFunc) error {
	items, err := s.store.Items(ctx)
	if err != nil {
		return err
	}

	var pending []model.BatchItem
	for _, item := range items {
		if item.Verdict == nil {
			pending = append(pending, item)
		}
	}

	onRetry := func(left int) {
		s.notice(model.NoticeInfo, fmt.Sprintf(RetryTextFormat, left))
	}

	for i, item := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress(i, len(pending))
		}

		v := s.analyzer.Analyze(ctx, item.Message.Body, onRetry)
		if err := s.RecordVerdict(ctx, item.Message.ID, v); err != nil {
			return fmt.Errorf("recording verdict for %s: %w", item.Message.ID, err)
		}
		s.logger.Info("message analyzed", "uid", item.Message.ID, "importance", int(v.Importance))
	}

	if progress != nil {
		progress(len(pending), len(pending))
	}
	return nil
}

// Reply sends draft to the sender of message id, marks the message read
// and removes it from the batch. Failures are reported as notices and
// leave the message in the batch. A message whose reply already went out
// only retries the mark-read, so the reply is never sent twice.
func (s *Session) Reply(ctx context.Context, id, draft string) bool {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Warn("reply to unknown message", "uid", id, "err", err)
		s.notice(model.NoticeError, "This email is no longer in the current batch.")
		return false
	}

	if !item.Actionable() {
		s.notice(model.NoticeWarning, "Analysis failed for this email; there is no reply to send.")
		return false
	}

	to := item.Message.Sender
	if item.State != model.StateReplied {
		if strings.TrimSpace(draft) == "" {
			s.notice(model.NoticeWarning, "The reply is empty.")
			return false
		}

		if err := s.sender.SendReply(ctx, to, item.Message.Subject, draft); err != nil {
			s.logger.Error("send failed", "uid", id, "err", err)
			s.notice(model.NoticeError, fmt.Sprintf("Failed to send email: %v", err))
			return false
		}
		if err := s.store.SetState(ctx, id, model.StateReplied); err != nil {
			s.logger.Error("recording replied state", "uid", id, "err", err)
		}
	}

	if err := s.mailbox.MarkRead(ctx, id); err != nil {
		s.logger.Error("mark read failed", "uid", id, "err", err)
		s.notice(model.NoticeWarning, fmt.Sprintf(
			"Response sent to %s, but the email could not be marked as read: %v", to, err))
		return false
	}

	if err := s.Remove(ctx, id); err != nil {
		s.logger.Error("removing replied message", "uid", id, "err", err)
	}

	s.notice(model.NoticeSuccess, "Response sent to "+to)
	return true
}

// Reset discards the batch under a new session id. The rate-limit window
// keeps counting; only its expiry frees fetches.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.ID = uuid.New().String()
	s.logger.Info("session reset", "new_session", s.ID[:8])
	return nil
}

// Close ends the session and drops the batch.
func (s *Session) Close() error {
	return s.store.Close()
}

func (s *Session) notice(level model.NoticeLevel, text string) {
	s.notify(model.Notice{Level: level, Text: text})
}

func fetchFailureText(err error) string {
	switch {
	case mailbox.IsAuthError(err):
		return "Login failed: check the email address and app password. " + err.Error()
	case mailbox.IsConnectivityError(err):
		return "Could not reach the mail server: " + err.Error()
	default:
		return "Failed to fetch emails: " + err.Error()
	}
}
