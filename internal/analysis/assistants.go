package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	betaHeader     = "assistants=v2"
)

// AssistantsClient implements JobRunner against the OpenAI Assistants v2
// REST API. A job is a thread holding the message body plus a run bound to
// the configured assistant.
type AssistantsClient struct {
	http        *resty.Client
	assistantID string
}

// NewAssistantsClient creates a client for the given API key and assistant.
func NewAssistantsClient(baseURL, apiKey, assistantID string, timeout time.Duration) *AssistantsClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("OpenAI-Beta", betaHeader).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		http.SetTimeout(timeout)
	}

	return &AssistantsClient{http: http, assistantID: assistantID}
}

// Start creates a thread, posts content as a user message and starts a run.
func (c *AssistantsClient) Start(ctx context.Context, content string) (Job, error) {
	var thread apiThread
	if err := c.do(ctx, c.http.R().SetBody(struct{}{}).SetResult(&thread), "POST", "/threads"); err != nil {
		return Job{}, fmt.Errorf("creating thread: %w", err)
	}

	msg := apiMessageRequest{Role: "user", Content: content}
	req := c.http.R().
		SetPathParam("thread_id", thread.ID).
		SetBody(msg)
	if err := c.do(ctx, req, "POST", "/threads/{thread_id}/messages"); err != nil {
		return Job{}, fmt.Errorf("posting message: %w", err)
	}

	return c.Restart(ctx, Job{ThreadID: thread.ID})
}

// Restart starts a new run on the job's thread.
func (c *AssistantsClient) Restart(ctx context.Context, job Job) (Job, error) {
	var run apiRun
	req := c.http.R().
		SetPathParam("thread_id", job.ThreadID).
		SetBody(apiRunRequest{AssistantID: c.assistantID}).
		SetResult(&run)
	if err := c.do(ctx, req, "POST", "/threads/{thread_id}/runs"); err != nil {
		return Job{}, fmt.Errorf("creating run: %w", err)
	}

	return Job{ThreadID: job.ThreadID, RunID: run.ID}, nil
}

// Status retrieves the run.
func (c *AssistantsClient) Status(ctx context.Context, job Job) (JobStatus, error) {
	var run apiRun
	req := c.http.R().
		SetPathParams(map[string]string{
			"thread_id": job.ThreadID,
			"run_id":    job.RunID,
		}).
		SetResult(&run)
	if err := c.do(ctx, req, "GET", "/threads/{thread_id}/runs/{run_id}"); err != nil {
		return JobStatus{}, fmt.Errorf("retrieving run: %w", err)
	}

	status := JobStatus{State: JobState(run.Status)}
	if run.LastError != nil {
		status.LastError = run.LastError.Message
	}
	return status, nil
}

// Output returns the text of the newest assistant message produced by the
// job's run.
func (c *AssistantsClient) Output(ctx context.Context, job Job) (string, error) {
	var list apiMessageList
	req := c.http.R().
		SetPathParam("thread_id", job.ThreadID).
		SetQueryParams(map[string]string{
			"run_id": job.RunID,
			"order":  "desc",
			"limit":  "1",
		}).
		SetResult(&list)
	if err := c.do(ctx, req, "GET", "/threads/{thread_id}/messages"); err != nil {
		return "", fmt.Errorf("listing messages: %w", err)
	}

	for _, m := range list.Data {
		if m.Role != "assistant" {
			continue
		}
		for _, part := range m.Content {
			if part.Type == "text" && part.Text != nil {
				return part.Text.Value, nil
			}
		}
	}
	return "", errors.New("run produced no text reply")
}

// do executes req and converts non-2xx responses into errors carrying the
// provider's message.
func (c *AssistantsClient) do(ctx context.Context, req *resty.Request, method, url string) error {
	var apiErr apiErrorResponse
	resp, err := req.SetContext(ctx).SetError(&apiErr).Execute(method, url)
	if err != nil {
		return err
	}

	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// --- API types ---

type apiThread struct {
	ID string `json:"id"`
}

type apiMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

type apiRun struct {
	ID        string       `json:"id"`
	ThreadID  string       `json:"thread_id"`
	Status    string       `json:"status"`
	LastError *apiRunError `json:"last_error"`
}

type apiRunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMessageList struct {
	Data []apiMessage `json:"data"`
}

type apiMessage struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	RunID   string           `json:"run_id"`
	Content []apiContentPart `json:"content"`
}

type apiContentPart struct {
	Type string       `json:"type"`
	Text *apiTextPart `json:"text,omitempty"`
}

type apiTextPart struct {
	Value string `json:"value"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
