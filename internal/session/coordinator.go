package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pharmtask/agent/internal/desktop"
	"github.com/pharmtask/agent/internal/model"
	"github.com/pharmtask/agent/internal/realtime"
	"github.com/pharmtask/agent/internal/store"
)

// Channel is the realtime surface the coordinator drives.
type Channel interface {
	Connect(token string) error
	Disconnect()
	On(event string, h realtime.Handler)
	Off(event string)
	JoinRoom(room string)
}

// Store is the notification-store surface the coordinator writes to.
type Store interface {
	Add(input store.AddInput) model.Notification
	LoadMissed(records []model.Notification)
}

// Bridge is the desktop-notification surface.
type Bridge interface {
	RequestPermission() desktop.Permission
	Show(title, body string)
}

// MissedFetcher fetches notifications generated while disconnected.
type MissedFetcher interface {
	MissedNotifications(ctx context.Context) ([]model.Notification, error)
}

// TaskSink receives task lifecycle changes from realtime events.
type TaskSink interface {
	Track(task model.MonitoredTask)
	Update(taskID string, update model.TaskUpdate)
}

// handledEvents are the inbound events the coordinator registers for and
// deregisters on teardown.
var handledEvents = []string{
	realtime.EventConnect,
	realtime.EventTaskCreated,
	realtime.EventTaskUpdated,
	realtime.EventPasswordResetRequest,
	realtime.EventPasswordResetApproved,
	realtime.EventPasswordResetRejected,
	realtime.EventNotificationNew,
}

// Coordinator wires the realtime channel into the notification store, the
// desktop bridge, and the deadline monitor for the lifetime of an
// authenticated session. Each event handler is independent; no handler
// assumes ordering relative to the others.
type Coordinator struct {
	channel Channel
	backend MissedFetcher
	store   Store
	bridge  Bridge
	tasks   TaskSink
	logger  *zap.Logger

	mu            sync.Mutex
	sess          model.Session
	active        bool
	missedFetched bool
	unread        int
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(channel Channel, backend MissedFetcher, s Store, bridge Bridge, tasks TaskSink, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		channel: channel,
		backend: backend,
		store:   s,
		bridge:  bridge,
		tasks:   tasks,
		logger:  logger,
	}
}

// Session returns the current session, if one is active.
func (c *Coordinator) Session() (model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess, c.active
}

// UnreadBadge returns the running count of unread realtime notifications
// accumulated this session.
func (c *Coordinator) UnreadBadge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Start wires the session. The desktop permission request is fired
// without blocking; a missing or blank token aborts wiring silently.
func (c *Coordinator) Start(sess model.Session) error {
	go c.bridge.RequestPermission()

	if strings.TrimSpace(sess.Token) == "" {
		c.logger.Debug("No auth token, skipping realtime wiring")
		return nil
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}
	c.sess = sess
	c.active = true
	c.missedFetched = false
	c.unread = 0
	c.mu.Unlock()

	c.registerHandlers(sess)

	if err := c.channel.Connect(sess.Token); err != nil {
		return fmt.Errorf("starting session wiring: %w", err)
	}
	return nil
}

// Stop tears the session down: handlers are deregistered and the
// missed-notifications flag resets so the next session fetches again.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.missedFetched = false
	c.sess = model.Session{}
	c.mu.Unlock()

	for _, event := range handledEvents {
		c.channel.Off(event)
	}
	c.channel.Disconnect()
}

// registerHandlers installs one handler per inbound event.
func (c *Coordinator) registerHandlers(sess model.Session) {
	c.channel.On(realtime.EventConnect, func(json.RawMessage) {
		c.onConnect(sess)
	})

	c.channel.On(realtime.EventTaskCreated, func(data json.RawMessage) {
		c.onTaskCreated(sess, data)
	})

	c.channel.On(realtime.EventTaskUpdated, func(data json.RawMessage) {
		c.onTaskUpdated(data)
	})

	c.channel.On(realtime.EventPasswordResetRequest, func(data json.RawMessage) {
		c.onPasswordReset(data, model.SeverityWarning,
			"Password Reset Requested",
			"%s requested a password reset.")
	})

	c.channel.On(realtime.EventPasswordResetApproved, func(data json.RawMessage) {
		c.onPasswordReset(data, model.SeveritySuccess,
			"Password Reset Approved",
			"The password reset for %s was approved.")
	})

	c.channel.On(realtime.EventPasswordResetRejected, func(data json.RawMessage) {
		c.onPasswordReset(data, model.SeverityError,
			"Password Reset Rejected",
			"The password reset for %s was rejected.")
	})

	c.channel.On(realtime.EventNotificationNew, func(data json.RawMessage) {
		c.onNotificationNew(data)
	})
}

// onConnect joins the user's room and, once per session, pulls missed
// notifications into the store. Reconnects re-join the room but never
// re-fetch.
func (c *Coordinator) onConnect(sess model.Session) {
	c.channel.JoinRoom(realtime.UserRoom(sess.UserID))

	c.mu.Lock()
	fetch := !c.missedFetched
	c.missedFetched = true
	c.mu.Unlock()

	if !fetch {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		records, err := c.backend.MissedNotifications(ctx)
		if err != nil {
			c.logger.Warn("Failed to fetch missed notifications", zap.Error(err))
			return
		}

		c.store.LoadMissed(records)
		c.logger.Info("Loaded missed notifications", zap.Int("count", len(records)))
	}()
}

// onTaskCreated surfaces newly assigned tasks and registers them for
// deadline monitoring. Events for other users are ignored.
func (c *Coordinator) onTaskCreated(sess model.Session, data json.RawMessage) {
	var payload realtime.TaskCreatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn("Malformed task:created payload", zap.Error(err))
		return
	}

	if !payload.AssignedTo(sess.UserID) {
		return
	}

	title := payload.Task.Title
	if title == "" {
		title = payload.Task.ID
	}

	c.store.Add(store.AddInput{
		Severity: model.SeverityInfo,
		Title:    "New Task Assigned",
		Message:  "You have been assigned: " + title,
	})
	c.bridge.Show("New Task Assigned", title)

	c.mu.Lock()
	c.unread++
	c.mu.Unlock()

	if c.tasks != nil && payload.Task.ID != "" {
		c.tasks.Track(payload.Task)
	}
}

// onTaskUpdated feeds partial task updates into the monitor.
func (c *Coordinator) onTaskUpdated(data json.RawMessage) {
	var payload realtime.TaskUpdatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn("Malformed task:updated payload", zap.Error(err))
		return
	}
	if c.tasks == nil || payload.TaskID == "" {
		return
	}

	c.tasks.Update(payload.TaskID, model.TaskUpdate{
		Title:     payload.Title,
		Deadline:  payload.Deadline,
		Status:    payload.Status,
		Checklist: payload.Checklist,
	})
}

// onPasswordReset records a password-reset workflow event with a fixed
// severity and a message templated with the subject's name.
func (c *Coordinator) onPasswordReset(data json.RawMessage, severity model.Severity, title, template string) {
	var payload realtime.PasswordResetPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn("Malformed password reset payload", zap.Error(err))
		return
	}

	who := payload.UserName
	if who == "" {
		who = payload.UserID
	}

	c.store.Add(store.AddInput{
		Severity: severity,
		Title:    title,
		Message:  fmt.Sprintf(template, who),
	})
}

// onNotificationNew passes arbitrary server notifications through to the
// store, defaulting absent fields.
func (c *Coordinator) onNotificationNew(data json.RawMessage) {
	var payload realtime.NotificationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn("Malformed notification:new payload", zap.Error(err))
		return
	}

	title := payload.Title
	if title == "" {
		title = "Notification"
	}
	message := payload.Message
	if message == "" {
		message = "You have a new notification."
	}

	c.store.Add(store.AddInput{
		Severity:    model.ParseSeverity(payload.Type),
		Title:       title,
		Message:     message,
		ScheduledAt: payload.ScheduledTime,
	})
}
