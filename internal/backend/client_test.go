package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pharmtask/agent/internal/model"
)

func TestOpenTasksRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "u-1", r.URL.Query().Get("userId"))
		assert.Equal(t, "In Progress", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"taskId": "t-1", "title": "Shelf audit", "status": "In Progress"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	tasks, err := c.OpenTasks(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t-1", tasks[0].ID)
	assert.Equal(t, model.StatusInProgress, tasks[0].Status)
}

func TestChecklistRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/t-1/checklist", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"itemId": "c-1", "completed": true, "notes": "ok"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	items, err := c.Checklist(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c-1", items[0].ID)
	assert.True(t, items[0].Completed)
}

func TestSubmitTaskSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks/submit", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "t-1", body["taskId"])
		assert.Equal(t, "u-1", body["submittedBy"])
		assert.Equal(t, "staff", body["submitterRole"])
		assert.Equal(t, "Auto-submitted: Task deadline reached", body["notes"])

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	err := c.SubmitTask(context.Background(), SubmitRequest{
		TaskID:        "t-1",
		SubmittedBy:   "u-1",
		SubmitterRole: "staff",
		ChecklistJSON: "{}",
		Notes:         "Auto-submitted: Task deadline reached",
	})
	require.NoError(t, err)
}

func TestSubmitTaskDecodesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "Task already submitted"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	err := c.SubmitTask(context.Background(), SubmitRequest{TaskID: "t-1"})
	require.Error(t, err)

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	assert.Equal(t, "Task already submitted", submitErr.Message)
	assert.Equal(t, http.StatusConflict, submitErr.StatusCode)
	assert.True(t, IsPermanentSubmitError(err))
}

func TestSubmitTaskServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "database unavailable"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	err := c.SubmitTask(context.Background(), SubmitRequest{TaskID: "t-1"})
	require.Error(t, err)
	assert.False(t, IsPermanentSubmitError(err))
}

func TestSubmitTaskNetworkErrorIsNotSubmitError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "tok", zap.NewNop())
	err := c.SubmitTask(context.Background(), SubmitRequest{TaskID: "t-1"})
	require.Error(t, err)
	assert.False(t, IsPermanentSubmitError(err))
}

func TestMissedNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/missed", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"notifications": []map[string]interface{}{
				{
					"id":        "n-1",
					"type":      "warning",
					"title":     "Stock check",
					"message":   "Expiring lots on shelf 4",
					"timestamp": "2026-08-29T10:00:00Z",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	records, err := c.MissedNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "n-1", records[0].ID)
	assert.Equal(t, model.SeverityWarning, records[0].Severity)
}

func TestMissedNotificationsFailureFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	_, err := c.MissedNotifications(context.Background())
	assert.Error(t, err)
}

func TestSubmitErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		permanent bool
	}{
		{"already submitted", "Task already submitted", true},
		{"already auto-submitted", "Task was already auto-submitted", true},
		{"already expired", "Task already expired", true},
		{"not authorized", "User not authorized to submit this task", true},
		{"not found", "Task not found", true},
		{"case insensitive", "TASK ALREADY SUBMITTED", true},
		{"network", "Network Error", false},
		{"unknown", "something odd happened", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &SubmitError{TaskID: "t-1", Message: tt.message}
			assert.Equal(t, tt.permanent, err.Permanent())
		})
	}
}
