package realtime

import (
	"encoding/json"
	"time"

	"github.com/pharmtask/agent/internal/model"
)

// Inbound event names delivered by the backend event stream. The connect,
// disconnect, and connect_error events are synthesized locally from the
// transport state and carry no payload.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"

	EventTaskCreated           = "task:created"
	EventTaskUpdated           = "task:updated"
	EventPasswordResetRequest  = "password_reset:request"
	EventPasswordResetApproved = "password_reset:approved"
	EventPasswordResetRejected = "password_reset:rejected"
	EventNotificationNew       = "notification:new"
)

// EventTaskAutoSubmitted is emitted by this client after a successful
// auto-submission.
const EventTaskAutoSubmitted = "task:auto-submitted"

// Room membership control events.
const (
	eventRoomJoin  = "room:join"
	eventRoomLeave = "room:leave"
)

// frame is the wire shape of every channel message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler consumes an inbound event's raw payload.
type Handler func(data json.RawMessage)

// TaskCreatedPayload is the payload of task:created.
type TaskCreatedPayload struct {
	Task      model.MonitoredTask `json:"task"`
	UserID    string              `json:"userId,omitempty"`
	Assignees []string            `json:"assignees,omitempty"`
}

// AssignedTo reports whether the event names the given user, either via
// the assignee list or a direct userId match.
func (p TaskCreatedPayload) AssignedTo(userID string) bool {
	if p.UserID == userID {
		return true
	}
	for _, a := range p.Assignees {
		if a == userID {
			return true
		}
	}
	return false
}

// TaskUpdatedPayload is the payload of task:updated. Optional fields are
// pointers so an absent field is distinguishable from a zero value.
type TaskUpdatedPayload struct {
	TaskID    string                `json:"taskId"`
	Title     *string               `json:"title,omitempty"`
	Deadline  *time.Time            `json:"deadline,omitempty"`
	Status    *model.TaskStatus     `json:"status,omitempty"`
	Checklist []model.ChecklistItem `json:"checklistItems,omitempty"`
}

// PasswordResetPayload is shared by the password_reset:* events.
type PasswordResetPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Reason   string `json:"reason,omitempty"`
}

// NotificationPayload is the payload of notification:new. All fields are
// optional on the wire; the coordinator supplies fallbacks.
type NotificationPayload struct {
	Type          string     `json:"type,omitempty"`
	Title         string     `json:"title,omitempty"`
	Message       string     `json:"message,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
}

// AutoSubmittedPayload is the outbound payload of task:auto-submitted.
type AutoSubmittedPayload struct {
	TaskID      string `json:"taskId"`
	SubmittedBy string `json:"submittedBy"`
}

// roomPayload is the payload of the room control events.
type roomPayload struct {
	Room string `json:"room"`
}
