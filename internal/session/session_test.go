package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horken7/your-mail-buddy/internal/analysis"
	"github.com/horken7/your-mail-buddy/internal/mailbox"
	"github.com/horken7/your-mail-buddy/internal/model"
	"github.com/horken7/your-mail-buddy/tests/testutil"
)

type fakeMailbox struct {
	result   *mailbox.FetchResult
	fetchErr error
	markErr  error

	fetches int
	limits  []int
	seen    map[string]int
}

func (f *fakeMailbox) FetchUnread(_ context.Context, limit int) (*mailbox.FetchResult, error) {
	f.fetches++
	f.limits = append(f.limits, limit)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.result, nil
}

func (f *fakeMailbox) MarkRead(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	if f.seen == nil {
		f.seen = map[string]int{}
	}
	f.seen[id]++
	return nil
}

type sent struct{ to, subject, body string }

type fakeSender struct {
	err  error
	sent []sent
}

func (f *fakeSender) SendReply(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to, subject, body})
	return nil
}

type fakeAnalyzer struct {
	verdicts map[string]model.Verdict
	retries  []int
	bodies   []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, body string, onRetry analysis.RetryFunc) model.Verdict {
	f.bodies = append(f.bodies, body)
	for _, n := range f.retries {
		onRetry(n)
	}
	if v, ok := f.verdicts[body]; ok {
		return v
	}
	return model.Verdict{Importance: 3, Summary: "default", DraftReply: "reply to " + body}
}

type harness struct {
	session  *Session
	mailbox  *fakeMailbox
	sender   *fakeSender
	analyzer *fakeAnalyzer
	notices  []model.Notice
	clock    *clock
}

func newHarness(t *testing.T, msgs []model.Message) *harness {
	t.Helper()
	h := &harness{
		mailbox:  &fakeMailbox{result: &mailbox.FetchResult{Messages: msgs, Unread: len(msgs)}},
		sender:   &fakeSender{},
		analyzer: &fakeAnalyzer{},
		clock:    newClock(),
	}
	h.session = New(Config{
		MaxMessagesPerFetch: 5,
		MaxFetchesPerWindow: 5,
		Window:              time.Hour,
	}, Deps{
		Store:    testutil.NewTestStore(t),
		Mailbox:  h.mailbox,
		Sender:   h.sender,
		Analyzer: h.analyzer,
		Notify:   func(n model.Notice) { h.notices = append(h.notices, n) },
		Now:      h.clock.now,
	})
	return h
}

func (h *harness) last() model.Notice {
	if len(h.notices) == 0 {
		return model.Notice{}
	}
	return h.notices[len(h.notices)-1]
}

func (h *harness) fetchAndAnalyze(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.session.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, h.session.AnalyzePending(ctx, nil))
}

func ids(items []model.BatchItem) []string {
	var out []string
	for _, item := range items {
		out = append(out, item.Message.ID)
	}
	return out
}

func TestNewSessionHasID(t *testing.T) {
	a := newHarness(t, nil)
	b := newHarness(t, nil)
	assert.NotEmpty(t, a.session.ID)
	assert.NotEqual(t, a.session.ID, b.session.ID)
	assert.True(t, a.session.Ready())
}

func TestFetchRecordsBatch(t *testing.T) {
	h := newHarness(t, testutil.Messages(3))
	ctx := context.Background()

	n, err := h.session.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{5}, h.mailbox.limits)

	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102", "103"}, ids(batch))
}

func TestFetchEmptyMailbox(t *testing.T) {
	h := newHarness(t, nil)

	n, err := h.session.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.Notice{Level: model.NoticeInfo, Text: NoUnreadText}, h.last())
}

func TestFetchRateLimited(t *testing.T) {
	h := newHarness(t, testutil.Messages(1))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.session.Fetch(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, h.session.RemainingFetches())

	_, err := h.session.Fetch(ctx)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 5, h.mailbox.fetches)
	assert.Equal(t, model.Notice{Level: model.NoticeWarning, Text: RateLimitedText}, h.last())

	h.clock.advance(time.Hour + time.Second)
	_, err = h.session.Fetch(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 6, h.mailbox.fetches)
}

func TestCheckRateLimitCountsFailedFetches(t *testing.T) {
	h := newHarness(t, nil)
	h.mailbox.fetchErr = &mailbox.ConnectivityError{Server: "imap.example.com:993", Err: errors.New("timeout")}

	for i := 0; i < 5; i++ {
		_, err := h.session.Fetch(context.Background())
		require.Error(t, err)
	}
	assert.False(t, h.session.CheckRateLimit())
}

func TestFetchDiscardsPreviousBatch(t *testing.T) {
	h := newHarness(t, testutil.Messages(3))
	ctx := context.Background()
	h.fetchAndAnalyze(t)

	h.mailbox.result = &mailbox.FetchResult{Messages: []model.Message{{ID: "500", Sender: "n@example.com", Body: "new"}}}
	_, err := h.session.Fetch(ctx)
	require.NoError(t, err)

	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"500"}, ids(batch))
	assert.Nil(t, batch[0].Verdict)
}

func TestFetchFailureKeepsPreviousBatch(t *testing.T) {
	h := newHarness(t, testutil.Messages(2))
	ctx := context.Background()
	h.fetchAndAnalyze(t)

	h.mailbox.fetchErr = &mailbox.ConnectivityError{Server: "imap.example.com:993", Err: errors.New("timeout")}
	_, err := h.session.Fetch(ctx)
	require.Error(t, err)

	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, item := range batch {
		assert.NotNil(t, item.Verdict)
	}
}

func TestFetchEmptyResultClearsBatch(t *testing.T) {
	h := newHarness(t, testutil.Messages(2))
	ctx := context.Background()
	h.fetchAndAnalyze(t)

	h.mailbox.result = &mailbox.FetchResult{}
	n, err := h.session.Fetch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestFetchFailureNotices(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		prefix string
	}{
		{"auth", &mailbox.AuthError{Server: "s", Account: "a", Err: errors.New("NO")}, "Login failed"},
		{"connectivity", &mailbox.ConnectivityError{Server: "s", Err: errors.New("refused")}, "Could not reach"},
		{"protocol", &mailbox.ProtocolError{Op: "search unseen", Err: errors.New("BAD")}, "Failed to fetch emails"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.mailbox.fetchErr = tt.err

			_, err := h.session.Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, model.NoticeError, h.last().Level)
			assert.Contains(t, h.last().Text, tt.prefix)
		})
	}
}

func TestFetchSkippedMessagesWarn(t *testing.T) {
	h := newHarness(t, testutil.Messages(1))
	h.mailbox.result.Skipped = []*mailbox.FetchError{{ID: "77", Err: mailbox.ErrEmptyBody}}

	n, err := h.session.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NotEmpty(t, h.notices)
	assert.Equal(t, model.NoticeWarning, h.notices[0].Level)
	assert.Contains(t, h.notices[0].Text, "77")
}

func TestAnalyzePendingIsSequentialAndSkipsAnalyzed(t *testing.T) {
	msgs := testutil.Messages(3)
	h := newHarness(t, msgs)
	ctx := context.Background()

	_, err := h.session.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, h.session.RecordVerdict(ctx, "102", model.Verdict{Importance: 1, Summary: "s", DraftReply: "r"}))

	var progress [][2]int
	require.NoError(t, h.session.AnalyzePending(ctx, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	}))

	assert.Equal(t, []string{msgs[0].Body, msgs[2].Body}, h.analyzer.bodies)
	assert.Equal(t, [][2]int{{0, 2}, {1, 2}, {2, 2}}, progress)

	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	for _, item := range batch {
		require.NotNil(t, item.Verdict, item.Message.ID)
	}
}

func TestAnalyzePendingForwardsRetryNotices(t *testing.T) {
	h := newHarness(t, testutil.Messages(1))
	h.analyzer.retries = []int{6, 5}
	h.fetchAndAnalyze(t)

	require.Len(t, h.notices, 2)
	assert.Equal(t, "Slow response due to OpenAI rate limiting. Retrying, 6 attempts left...", h.notices[0].Text)
	assert.Equal(t, "Slow response due to OpenAI rate limiting. Retrying, 5 attempts left...", h.notices[1].Text)
}

func TestRankedOrdersByImportance(t *testing.T) {
	msgs := testutil.Messages(3)
	h := newHarness(t, msgs)
	h.analyzer.verdicts = map[string]model.Verdict{
		msgs[0].Body: {Importance: 2, Summary: "a", DraftReply: "a"},
		msgs[1].Body: model.FailedVerdict("rate limited"),
		msgs[2].Body: {Importance: 5, Summary: "c", DraftReply: "c"},
	}
	h.fetchAndAnalyze(t)

	ranked, err := h.session.Ranked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"103", "101", "102"}, ids(ranked))
}

func TestReplySendsMarksReadAndRemoves(t *testing.T) {
	h := newHarness(t, testutil.Messages(3))
	ctx := context.Background()
	h.fetchAndAnalyze(t)

	ok := h.session.Reply(ctx, "102", "Edited reply")
	require.True(t, ok)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, sent{"sender2@example.com", "Subject 2", "Edited reply"}, h.sender.sent[0])
	assert.Equal(t, map[string]int{"102": 1}, h.mailbox.seen)

	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "103"}, ids(batch))
	assert.Equal(t, model.Notice{Level: model.NoticeSuccess, Text: "Response sent to sender2@example.com"}, h.last())
}

func TestReplySendFailureKeepsMessage(t *testing.T) {
	h := newHarness(t, testutil.Messages(2))
	ctx := context.Background()
	h.fetchAndAnalyze(t)
	h.sender.err = &mailbox.SendError{To: "sender1@example.com", Err: errors.New("421 try later")}

	ok := h.session.Reply(ctx, "101", "hi")
	assert.False(t, ok)

	assert.Empty(t, h.mailbox.seen)
	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.Equal(t, model.StateAnalyzed, batch[0].State)
	assert.Equal(t, model.NoticeError, h.last().Level)
	assert.Contains(t, h.last().Text, "Failed to send email: ")

	h.sender.err = nil
	assert.True(t, h.session.Reply(ctx, "101", "hi"))
	assert.Len(t, h.sender.sent, 1)
}

func TestReplyMarkReadFailureDoesNotResend(t *testing.T) {
	h := newHarness(t, testutil.Messages(1))
	ctx := context.Background()
	h.fetchAndAnalyze(t)
	h.mailbox.markErr = &mailbox.ConnectivityError{Server: "s", Err: errors.New("reset")}

	assert.False(t, h.session.Reply(ctx, "101", "hi"))
	require.Len(t, h.sender.sent, 1)

	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, model.StateReplied, batch[0].State)

	h.mailbox.markErr = nil
	assert.True(t, h.session.Reply(ctx, "101", "hi"))
	assert.Len(t, h.sender.sent, 1, "reply must not be sent twice")

	n, err := h.session.Batch(ctx)
	require.NoError(t, err)
	assert.Empty(t, n)
}

func TestReplyRefusesFailedVerdict(t *testing.T) {
	msgs := testutil.Messages(1)
	h := newHarness(t, msgs)
	h.analyzer.verdicts = map[string]model.Verdict{msgs[0].Body: model.FailedVerdict("boom")}
	h.fetchAndAnalyze(t)

	assert.False(t, h.session.Reply(context.Background(), "101", "boom"))
	assert.Empty(t, h.sender.sent)
	assert.Equal(t, model.NoticeWarning, h.last().Level)
}

func TestReplyRefusesUnanalyzedAndUnknown(t *testing.T) {
	h := newHarness(t, testutil.Messages(1))
	ctx := context.Background()
	_, err := h.session.Fetch(ctx)
	require.NoError(t, err)

	assert.False(t, h.session.Reply(ctx, "101", "hi"))
	assert.False(t, h.session.Reply(ctx, "999", "hi"))
	assert.Empty(t, h.sender.sent)
}

func TestReplyRefusesEmptyDraft(t *testing.T) {
	h := newHarness(t, testutil.Messages(1))
	h.fetchAndAnalyze(t)

	assert.False(t, h.session.Reply(context.Background(), "101", "   "))
	assert.Empty(t, h.sender.sent)
}

func TestResetClearsBatchKeepsWindow(t *testing.T) {
	h := newHarness(t, testutil.Messages(2))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := h.session.Fetch(ctx)
		require.NoError(t, err)
	}
	oldID := h.session.ID

	require.NoError(t, h.session.Reset(ctx))

	assert.NotEqual(t, oldID, h.session.ID)
	assert.Equal(t, 0, h.session.RemainingFetches())
	assert.False(t, h.session.CheckRateLimit())
	batch, err := h.session.Batch(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestResetWithinWindowStaysLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{MaxFetchesPerWindow: 1, Window: time.Hour}, Deps{
		Store: testutil.NewTestStore(t),
		Now:   func() time.Time { return now },
	})

	assert.True(t, s.CheckRateLimit())
	assert.False(t, s.CheckRateLimit())

	require.NoError(t, s.Reset(context.Background()))
	assert.False(t, s.CheckRateLimit())

	now = now.Add(time.Hour + time.Second)
	assert.True(t, s.CheckRateLimit())
}

// alwaysSucceeds is a JobRunner whose every job completes immediately.
type alwaysSucceeds struct{ output string }

func (a alwaysSucceeds) Start(context.Context, string) (analysis.Job, error) {
	return analysis.Job{ThreadID: "t", RunID: "r"}, nil
}

func (a alwaysSucceeds) Restart(_ context.Context, j analysis.Job) (analysis.Job, error) {
	return j, nil
}

func (a alwaysSucceeds) Status(context.Context, analysis.Job) (analysis.JobStatus, error) {
	return analysis.JobStatus{State: analysis.JobCompleted}, nil
}

func (a alwaysSucceeds) Output(context.Context, analysis.Job) (string, error) {
	return a.output, nil
}

func TestEndToEndTwoMessages(t *testing.T) {
	h := newHarness(t, testutil.Messages(2))
	h.session.Reconfigure(h.mailbox, h.sender, analysis.NewAnalyzer(
		alwaysSucceeds{output: `{"importance":5,"summary":"Urgent","response":"OK"}`},
		analysis.Options{MaxAttempts: 7, PollInterval: time.Millisecond},
	))
	ctx := context.Background()
	h.fetchAndAnalyze(t)

	batch, err := h.session.Ranked(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, item := range batch {
		require.NotNil(t, item.Verdict)
		assert.Equal(t, model.Importance(5), item.Verdict.Importance)
		assert.Equal(t, "Urgent", item.Verdict.Summary)
		assert.Equal(t, "OK", item.Verdict.DraftReply)
	}

	first := batch[0].Message.ID
	require.True(t, h.session.Reply(ctx, first, batch[0].Verdict.DraftReply))

	remaining, err := h.session.Batch(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.NotEqual(t, first, remaining[0].Message.ID)
}
