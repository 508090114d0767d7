package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/horken7/your-mail-buddy/internal/logging"
	"github.com/horken7/your-mail-buddy/internal/model"
)

const (
	DefaultMaxAttempts  = 7
	DefaultPollInterval = 500 * time.Millisecond
	DefaultRetryBackoff = 21 * time.Second
)

// RetryFunc is told how many submissions remain each time a failed job is
// about to be retried, before the backoff wait starts.
type RetryFunc func(attemptsLeft int)

// Options configures an Analyzer. Zero values fall back to the defaults.
type Options struct {
	MaxAttempts  int
	PollInterval time.Duration
	RetryBackoff time.Duration
	Logger       *log.Logger
}

// Analyzer turns one message body into a Verdict by driving a remote job
// to completion. Jobs that fail are resubmitted after a fixed backoff, up
// to MaxAttempts submissions in total.
type Analyzer struct {
	runner       JobRunner
	maxAttempts  int
	pollInterval time.Duration
	retryBackoff time.Duration
	logger       *log.Logger

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAnalyzer creates an Analyzer backed by runner.
func NewAnalyzer(runner JobRunner, opts Options) *Analyzer {
	a := &Analyzer{
		runner:       runner,
		maxAttempts:  opts.MaxAttempts,
		pollInterval: opts.PollInterval,
		retryBackoff: opts.RetryBackoff,
		logger:       logging.OrDiscard(opts.Logger).With("component", "analysis"),
		sleep:        sleepContext,
	}
	if a.maxAttempts < 1 {
		a.maxAttempts = DefaultMaxAttempts
	}
	if a.pollInterval <= 0 {
		a.pollInterval = DefaultPollInterval
	}
	if a.retryBackoff <= 0 {
		a.retryBackoff = DefaultRetryBackoff
	}
	return a
}

// MaxAttempts returns the submission bound.
func (a *Analyzer) MaxAttempts() int {
	return a.maxAttempts
}

// Analyze never returns an error. Exhausted retries, transport failures,
// unparseable output and cancellation all produce a zero-importance
// verdict whose draft carries the underlying detail.
func (a *Analyzer) Analyze(ctx context.Context, body string, onRetry RetryFunc) model.Verdict {
	var (
		job     Job
		started bool
		detail  string
	)

	for attempt := 1; ; attempt++ {
		var (
			next Job
			err  error
		)
		if started {
			next, err = a.runner.Restart(ctx, job)
		} else {
			next, err = a.runner.Start(ctx, body)
			started = err == nil
		}
		if err == nil {
			job = next
		}

		if err == nil {
			var raw string
			raw, detail, err = a.await(ctx, job)
			if err == nil && detail == "" {
				v, perr := ParseVerdict(raw)
				if perr != nil {
					a.logger.Warn("unparseable verdict", "attempt", attempt, "err", perr, "raw", compact(raw))
					return parseFailure(raw)
				}
				a.logger.Debug("analysis completed", "attempt", attempt, "importance", int(v.Importance))
				return v
			}
		}
		if err != nil {
			detail = err.Error()
		}

		left := a.maxAttempts - attempt
		a.logger.Warn("analysis attempt failed", "attempt", attempt, "attempts_left", left, "err", detail)

		if ctx.Err() != nil {
			return model.FailedVerdict(detail)
		}
		if left <= 0 {
			return model.FailedVerdict(detail)
		}

		if onRetry != nil {
			onRetry(left)
		}
		if err := a.sleep(ctx, a.retryBackoff); err != nil {
			return model.FailedVerdict(detail)
		}
	}
}

// await polls job until it leaves the pending states. It returns the run's
// output on success, a non-empty failure detail when the run ended in any
// other state, or an error when the API could not be reached.
func (a *Analyzer) await(ctx context.Context, job Job) (output, failure string, err error) {
	for {
		status, err := a.runner.Status(ctx, job)
		if err != nil {
			return "", "", err
		}

		switch {
		case status.State == JobCompleted:
			out, err := a.runner.Output(ctx, job)
			if err != nil {
				return "", "", err
			}
			return out, "", nil

		case status.State.Pending():
			if err := a.sleep(ctx, a.pollInterval); err != nil {
				return "", "", err
			}

		default:
			if status.LastError != "" {
				return "", status.LastError, nil
			}
			return "", fmt.Sprintf("run %s", status.State), nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
