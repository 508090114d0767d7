package runner

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/horken7/your-mail-buddy/internal/logging"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/session"
)

// State is what the runner is currently doing.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateAnalyzing
	StateSending
	StateError
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateAnalyzing:
		return "analyzing"
	case StateSending:
		return "sending"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

var (
	// ErrBusy is reported when a job is requested while another one runs.
	ErrBusy = errors.New("another operation is still running")

	// ErrNotReady is reported when no session is attached yet.
	ErrNotReady = errors.New("mailbox and analysis settings are incomplete")
)

// NoticeMsg carries a session notice into the Bubble Tea runtime.
type NoticeMsg struct {
	Notice model.Notice
}

// ProgressMsg reports analysis progress for the running cycle.
type ProgressMsg struct {
	Done  int
	Total int
}

// CycleDoneMsg is sent when a fetch+analyze cycle ends.
type CycleDoneMsg struct {
	Count int
	Err   error
}

// ReplyDoneMsg is sent when a reply attempt ends. Sent is false when the
// message stayed in the batch.
type ReplyDoneMsg struct {
	ID   string
	Sent bool
}

// fetchTimeout bounds the mailbox part of a cycle. Analysis is bounded by
// the analyzer's own attempt budget.
const fetchTimeout = 60 * time.Second

// replyTimeout bounds one send + mark-read.
const replyTimeout = 60 * time.Second

// Session is the part of the session coordinator the runner drives.
type Session interface {
	Fetch(ctx context.Context) (int, error)
	AnalyzePending(ctx context.Context, progress session.ProgressFunc) error
	Reply(ctx context.Context, id, draft string) bool
}

// Runner executes session jobs off the UI goroutine and streams their
// notices and results back as tea messages.
type Runner struct {
	session Session
	logger  *log.Logger

	msgCh  chan tea.Msg
	ctx    context.Context
	cancel context.CancelFunc

	mu      gosync.Mutex
	state   State
	lastErr error
}

// New creates an idle runner. Attach must be called before any job runs;
// Notify can be handed to the session before that.
func New(logger *log.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger: logging.OrDiscard(logger),
		msgCh:  make(chan tea.Msg, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Attach sets the session the runner drives.
func (r *Runner) Attach(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = s
}

// Notify forwards a notice to the UI. It has the session.Notifier shape.
func (r *Runner) Notify(n model.Notice) {
	r.send(NoticeMsg{Notice: n})
}

// State returns the current state and the error of the last failed job.
func (r *Runner) State() (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.lastErr
}

// Busy reports whether a job is running.
func (r *Runner) Busy() bool {
	st, _ := r.State()
	return st == StateFetching || st == StateAnalyzing || st == StateSending
}

// Fetch returns a command that starts one fetch+analyze cycle. The
// cycle's messages arrive through WaitForNext.
func (r *Runner) Fetch() tea.Cmd {
	if err := r.begin(StateFetching); err != nil {
		return refuse(err)
	}
	go r.cycle()
	return nil
}

// Reply returns a command that sends draft for message id in the
// background.
func (r *Runner) Reply(id, draft string) tea.Cmd {
	if err := r.begin(StateSending); err != nil {
		return refuse(err)
	}
	go r.reply(id, draft)
	return nil
}

// Stop cancels the running job. Messages not yet delivered are dropped.
func (r *Runner) Stop() {
	r.cancel()
}

// WaitForNext returns a command that blocks until the next runner message.
// It must be re-issued after every message it delivers.
func (r *Runner) WaitForNext() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-r.msgCh:
			return msg
		case <-r.ctx.Done():
			return nil
		}
	}
}

func (r *Runner) cycle() {
	ctx, cancel := context.WithTimeout(r.ctx, fetchTimeout)
	count, err := r.session.Fetch(ctx)
	cancel()
	if err != nil || count == 0 {
		r.finish(err)
		r.send(CycleDoneMsg{Count: count, Err: err})
		return
	}

	r.setState(StateAnalyzing)
	r.logger.Info("analyzing batch", "count", count)
	err = r.session.AnalyzePending(r.ctx, func(done, total int) {
		r.send(ProgressMsg{Done: done, Total: total})
	})
	r.finish(err)
	r.send(CycleDoneMsg{Count: count, Err: err})
}

func (r *Runner) reply(id, draft string) {
	ctx, cancel := context.WithTimeout(r.ctx, replyTimeout)
	defer cancel()

	sent := r.session.Reply(ctx, id, draft)
	r.finish(nil)
	r.send(ReplyDoneMsg{ID: id, Sent: sent})
}

func (r *Runner) begin(state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ErrNotReady
	}
	switch r.state {
	case StateFetching, StateAnalyzing, StateSending:
		return ErrBusy
	}
	r.state = state
	r.lastErr = nil
	return nil
}

func refuse(err error) tea.Cmd {
	return func() tea.Msg {
		return NoticeMsg{Notice: model.Notice{Level: model.NoticeWarning, Text: err.Error()}}
	}
}

func (r *Runner) setState(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *Runner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Rate limiting already produced its own notice; it is not a failure.
	if err != nil && !errors.Is(err, session.ErrRateLimited) {
		r.state = StateError
		r.lastErr = err
		return
	}
	r.state = StateIdle
}

// send delivers msg unless the runner was stopped.
func (r *Runner) send(msg tea.Msg) {
	select {
	case r.msgCh <- msg:
	case <-r.ctx.Done():
	}
}
