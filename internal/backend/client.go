package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmtask/agent/internal/model"
)

// Client is a thin HTTP client for the task backend REST API. It handles
// Bearer token authentication and JSON (de)serialization.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client. The baseURL should be the API root
// (e.g. https://tasks.pharm.example.com/api).
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SubmitRequest is the body of POST /tasks/submit.
type SubmitRequest struct {
	TaskID        string `json:"taskId"`
	SubmittedBy   string `json:"submittedBy"`
	SubmitterRole string `json:"submitterRole"`
	ChecklistJSON string `json:"checklistJson"`
	Notes         string `json:"notes"`
}

// tasksResponse is the envelope of GET /tasks.
type tasksResponse struct {
	Items []model.MonitoredTask `json:"items"`
}

// checklistResponse is the envelope of GET /tasks/{id}/checklist.
type checklistResponse struct {
	Items []model.ChecklistItem `json:"items"`
}

// missedResponse is the envelope of GET /notifications/missed.
type missedResponse struct {
	Success       bool                 `json:"success"`
	Notifications []model.Notification `json:"notifications"`
}

// errorResponse is the backend's error body shape.
type errorResponse struct {
	Message string `json:"message"`
}

// OpenTasks fetches the user's currently open (in-progress) tasks.
func (c *Client) OpenTasks(ctx context.Context, userID string) ([]model.MonitoredTask, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("status", string(model.StatusInProgress))

	var resp tasksResponse
	if err := c.get(ctx, "/tasks?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Checklist fetches the latest checklist state for a task.
func (c *Client) Checklist(ctx context.Context, taskID string) ([]model.ChecklistItem, error) {
	var resp checklistResponse
	path := "/tasks/" + url.PathEscape(taskID) + "/checklist"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// SubmitTask submits a task's checklist state on the user's behalf.
// A rejection is returned as a *SubmitError so callers can classify it.
func (c *Client) SubmitTask(ctx context.Context, req SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/tasks/submit", bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("creating submit request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing submit for task %s: %w", req.TaskID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading submit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			message = errResp.Message
		}
		return &SubmitError{
			TaskID:     req.TaskID,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	return nil
}

// MissedNotifications fetches notifications generated while the client was
// disconnected.
func (c *Client) MissedNotifications(ctx context.Context) ([]model.Notification, error) {
	var resp missedResponse
	if err := c.get(ctx, "/notifications/missed", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("missed notifications fetch reported failure")
	}
	return resp.Notifications, nil
}

// get performs an authenticated GET and unmarshals the JSON response.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+path, nil,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("authentication failed (401) on GET %s", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf(
			"unexpected status %d on GET %s: %s",
			resp.StatusCode, path, string(respBody),
		)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from GET %s: %w", path, err)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
}
