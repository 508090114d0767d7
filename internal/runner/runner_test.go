package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/internal/session"
)

type fakeSession struct {
	notify   func(model.Notice)
	count    int
	fetchErr error
	sent     bool
	block    chan struct{}

	analyzed int
	replies  []string
}

func (f *fakeSession) Fetch(ctx context.Context) (int, error) {
	if f.block != nil {
		<-f.block
	}
	if f.notify != nil {
		f.notify(model.Notice{Level: model.NoticeInfo, Text: "fetched"})
	}
	return f.count, f.fetchErr
}

func (f *fakeSession) AnalyzePending(ctx context.Context, progress session.ProgressFunc) error {
	for i := 0; i < f.count; i++ {
		progress(i, f.count)
		f.analyzed++
	}
	progress(f.count, f.count)
	return nil
}

func (f *fakeSession) Reply(ctx context.Context, id, draft string) bool {
	f.replies = append(f.replies, id+":"+draft)
	return f.sent
}

// next reads one runner message with a deadline.
func next(t *testing.T, r *Runner) tea.Msg {
	t.Helper()
	ch := make(chan tea.Msg, 1)
	go func() { ch <- r.WaitForNext()() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runner message")
		return nil
	}
}

func TestRunner_FetchCycleStreamsProgress(t *testing.T) {
	r := New(nil)
	defer r.Stop()
	fs := &fakeSession{count: 2, notify: r.Notify}
	r.Attach(fs)

	assert.Nil(t, r.Fetch())

	msgs := []tea.Msg{next(t, r), next(t, r), next(t, r), next(t, r), next(t, r)}
	assert.Equal(t, NoticeMsg{Notice: model.Notice{Level: model.NoticeInfo, Text: "fetched"}}, msgs[0])
	assert.Equal(t, ProgressMsg{Done: 0, Total: 2}, msgs[1])
	assert.Equal(t, ProgressMsg{Done: 1, Total: 2}, msgs[2])
	assert.Equal(t, ProgressMsg{Done: 2, Total: 2}, msgs[3])
	assert.Equal(t, CycleDoneMsg{Count: 2}, msgs[4])

	assert.Equal(t, 2, fs.analyzed)
	assert.False(t, r.Busy())
}

func TestRunner_EmptyFetchSkipsAnalysis(t *testing.T) {
	r := New(nil)
	defer r.Stop()
	fs := &fakeSession{}
	r.Attach(fs)

	r.Fetch()
	assert.Equal(t, CycleDoneMsg{}, next(t, r))
	assert.Zero(t, fs.analyzed)
}

func TestRunner_FetchErrorSetsErrorState(t *testing.T) {
	r := New(nil)
	defer r.Stop()
	boom := errors.New("boom")
	r.Attach(&fakeSession{fetchErr: boom})

	r.Fetch()
	done, ok := next(t, r).(CycleDoneMsg)
	require.True(t, ok)
	assert.ErrorIs(t, done.Err, boom)

	state, err := r.State()
	assert.Equal(t, StateError, state)
	assert.ErrorIs(t, err, boom)
}

func TestRunner_RateLimitedIsNotAnError(t *testing.T) {
	r := New(nil)
	defer r.Stop()
	r.Attach(&fakeSession{fetchErr: session.ErrRateLimited})

	r.Fetch()
	next(t, r)

	state, err := r.State()
	assert.Equal(t, StateIdle, state)
	assert.NoError(t, err)
}

func TestRunner_RefusesWhileBusy(t *testing.T) {
	r := New(nil)
	defer r.Stop()
	fs := &fakeSession{block: make(chan struct{})}
	r.Attach(fs)

	assert.Nil(t, r.Fetch())
	assert.True(t, r.Busy())

	cmd := r.Reply("101", "hi")
	require.NotNil(t, cmd)
	assert.Equal(t, ErrBusy.Error(), cmd().(NoticeMsg).Notice.Text)

	close(fs.block)
	assert.Equal(t, CycleDoneMsg{}, next(t, r))
	assert.Empty(t, fs.replies)
}

func TestRunner_RefusesWithoutSession(t *testing.T) {
	r := New(nil)
	defer r.Stop()

	cmd := r.Fetch()
	require.NotNil(t, cmd)
	assert.Equal(t, ErrNotReady.Error(), cmd().(NoticeMsg).Notice.Text)
}

func TestRunner_Reply(t *testing.T) {
	r := New(nil)
	defer r.Stop()
	fs := &fakeSession{sent: true}
	r.Attach(fs)

	r.Reply("101", "Thanks")
	assert.Equal(t, ReplyDoneMsg{ID: "101", Sent: true}, next(t, r))
	assert.Equal(t, []string{"101:Thanks"}, fs.replies)
}

func TestRunner_StopReleasesWaiters(t *testing.T) {
	r := New(nil)
	r.Stop()
	assert.Nil(t, r.WaitForNext()())
}
