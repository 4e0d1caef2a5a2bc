package model

import "time"

// TaskStatus is the lifecycle state of a task as reported by the backend.
// The set of values is owned by the backend; the client only needs to
// distinguish states it can still act on from states it cannot.
type TaskStatus string

const (
	StatusInProgress TaskStatus = "In Progress"
	StatusSubmitted  TaskStatus = "submitted"
	StatusApproved   TaskStatus = "approved"
	StatusRejected   TaskStatus = "rejected"
	StatusExpired    TaskStatus = "expired"

	// Approval workflow states. A task parked at any review stage has
	// left the window where client-side auto-submission applies.
	StatusPendingAreaManager TaskStatus = "Pending_Area_Manager"
	StatusPendingAuditor     TaskStatus = "Pending_Auditor"
	StatusPendingManagement  TaskStatus = "Pending_Management"
	StatusCompleted          TaskStatus = "Completed"
)

// terminalStatuses are the states after which the client must stop
// monitoring a task for deadline expiry.
var terminalStatuses = map[TaskStatus]bool{
	StatusSubmitted:          true,
	StatusApproved:           true,
	StatusRejected:           true,
	StatusExpired:            true,
	StatusPendingAreaManager: true,
	StatusPendingAuditor:     true,
	StatusPendingManagement:  true,
	StatusCompleted:          true,
}

// Terminal reports whether the status ends client-side deadline monitoring.
func (s TaskStatus) Terminal() bool {
	return terminalStatuses[s]
}

// ChecklistItem is a single entry on a task's checklist.
type ChecklistItem struct {
	// ID is the item's identifier within its task.
	ID string `json:"itemId"`

	// Completed indicates whether the item has been checked off.
	Completed bool `json:"completed"`

	// Notes holds free-text notes entered against the item.
	Notes string `json:"notes"`
}

// MonitoredTask is the client-held record of a task being watched for
// deadline expiry. At most one MonitoredTask exists per task ID.
type MonitoredTask struct {
	// ID is the task's unique identifier in the backend.
	ID string `json:"taskId"`

	// Title is the display name of the task.
	Title string `json:"title"`

	// Deadline is the absolute time by which the task must be submitted.
	Deadline time.Time `json:"deadline"`

	// Status is the task's current lifecycle state.
	Status TaskStatus `json:"status"`

	// Checklist is the last known checklist state, if any.
	Checklist []ChecklistItem `json:"checklistItems,omitempty"`
}

// TaskUpdate carries a partial update to a monitored task. Nil fields
// leave the existing value untouched.
type TaskUpdate struct {
	Title     *string
	Deadline  *time.Time
	Status    *TaskStatus
	Checklist []ChecklistItem
}

// Apply merges the update into the task in place.
func (u TaskUpdate) Apply(t *MonitoredTask) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Deadline != nil {
		t.Deadline = *u.Deadline
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Checklist != nil {
		t.Checklist = u.Checklist
	}
}
