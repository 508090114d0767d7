package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horken7/your-mail-buddy/internal/model"
)

// fakeAssistants is a minimal in-memory Assistants v2 API.
type fakeAssistants struct {
	t *testing.T

	mu       sync.Mutex
	runs     int
	statuses []string // status returned for run N (1-based), last repeats
	reply    string
	posted   []string
	failWith int // non-zero: every request returns this status code
}

func (f *fakeAssistants) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	assert.Equal(f.t, "Bearer sk-test", r.Header.Get("Authorization"))
	assert.Equal(f.t, "assistants=v2", r.Header.Get("OpenAI-Beta"))

	w.Header().Set("Content-Type", "application/json")
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1")
	switch {
	case r.Method == http.MethodPost && path == "/threads":
		writeJSON(w, map[string]any{"id": "thread_abc", "object": "thread"})

	case r.Method == http.MethodPost && path == "/threads/thread_abc/messages":
		var body apiMessageRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(f.t, "user", body.Role)
		f.posted = append(f.posted, body.Content)
		writeJSON(w, map[string]any{"id": "msg_1", "role": "user"})

	case r.Method == http.MethodPost && path == "/threads/thread_abc/runs":
		var body apiRunRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(f.t, "asst_123", body.AssistantID)
		f.runs++
		writeJSON(w, map[string]any{"id": runID(f.runs), "thread_id": "thread_abc", "status": "queued"})

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/threads/thread_abc/runs/"):
		id := strings.TrimPrefix(path, "/threads/thread_abc/runs/")
		assert.Equal(f.t, runID(f.runs), id)
		status := f.statuses[min(f.runs, len(f.statuses))-1]
		run := map[string]any{"id": id, "thread_id": "thread_abc", "status": status, "last_error": nil}
		if status == "failed" {
			run["last_error"] = map[string]any{"code": "rate_limit_exceeded", "message": "Rate limit reached for gpt-4"}
		}
		writeJSON(w, run)

	case r.Method == http.MethodGet && path == "/threads/thread_abc/messages":
		assert.Equal(f.t, runID(f.runs), r.URL.Query().Get("run_id"))
		assert.Equal(f.t, "desc", r.URL.Query().Get("order"))
		writeJSON(w, map[string]any{
			"data": []map[string]any{{
				"id":     "msg_2",
				"role":   "assistant",
				"run_id": runID(f.runs),
				"content": []map[string]any{{
					"type": "text",
					"text": map[string]any{"value": f.reply, "annotations": []any{}},
				}},
			}},
		})

	default:
		http.NotFound(w, r)
	}
}

func runID(n int) string {
	return "run_" + string(rune('0'+n))
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func startAssistants(t *testing.T, f *fakeAssistants) *AssistantsClient {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewAssistantsClient(srv.URL+"/v1", "sk-test", "asst_123", 5*time.Second)
}

func TestAssistantsClientJobLifecycle(t *testing.T) {
	fake := &fakeAssistants{statuses: []string{"completed"}, reply: `{"importance":3}`}
	client := startAssistants(t, fake)
	ctx := context.Background()

	job, err := client.Start(ctx, "Hello there")
	require.NoError(t, err)
	assert.Equal(t, Job{ThreadID: "thread_abc", RunID: "run_1"}, job)
	assert.Equal(t, []string{"Hello there"}, fake.posted)

	status, err := client.Status(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, status.State)
	assert.Empty(t, status.LastError)

	out, err := client.Output(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, `{"importance":3}`, out)
}

func TestAssistantsClientFailedRunCarriesLastError(t *testing.T) {
	fake := &fakeAssistants{statuses: []string{"failed"}}
	client := startAssistants(t, fake)
	ctx := context.Background()

	job, err := client.Start(ctx, "x")
	require.NoError(t, err)

	status, err := client.Status(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, status.State)
	assert.Equal(t, "Rate limit reached for gpt-4", status.LastError)

	next, err := client.Restart(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "thread_abc", next.ThreadID)
	assert.Equal(t, "run_2", next.RunID)
}

func TestAssistantsClientAPIError(t *testing.T) {
	fake := &fakeAssistants{failWith: http.StatusUnauthorized}
	client := startAssistants(t, fake)

	_, err := client.Start(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestAnalyzerAgainstAssistantsAPI(t *testing.T) {
	fake := &fakeAssistants{
		statuses: []string{"failed", "completed"},
		reply:    `{"importance":5,"summary":"Urgent","response":"OK"}`,
	}
	client := startAssistants(t, fake)
	a := NewAnalyzer(client, Options{MaxAttempts: 3, PollInterval: time.Millisecond})
	a.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	v := a.Analyze(context.Background(), "Server is down", nil)

	assert.Equal(t, model.Verdict{Importance: 5, Summary: "Urgent", DraftReply: "OK"}, v)
	assert.Equal(t, 2, fake.runs)
	assert.Equal(t, []string{"Server is down"}, fake.posted)
}
