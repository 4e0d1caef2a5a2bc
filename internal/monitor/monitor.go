package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pharmtask/agent/internal/backend"
	"github.com/pharmtask/agent/internal/model"
	"github.com/pharmtask/agent/internal/realtime"
	"github.com/pharmtask/agent/internal/store"
)

// autoSubmitNotes is the notes field sent with every automatic submission.
const autoSubmitNotes = "Auto-submitted: Task deadline reached"

// DefaultSweepInterval is how often the deadline sweep runs.
const DefaultSweepInterval = 60 * time.Second

// DefaultSubmitBuffer is how long before its deadline a task already
// counts as due. Eligibility is a single rule, now >= deadline - buffer,
// which tolerates small clock skew between client and backend.
const DefaultSubmitBuffer = 10 * time.Second

// Backend is the subset of the backend API the monitor calls.
type Backend interface {
	OpenTasks(ctx context.Context, userID string) ([]model.MonitoredTask, error)
	Checklist(ctx context.Context, taskID string) ([]model.ChecklistItem, error)
	SubmitTask(ctx context.Context, req backend.SubmitRequest) error
}

// Notifier raises a desktop notification. Fire-and-forget.
type Notifier interface {
	Show(title, body string)
}

// Emitter publishes a client-originated event on the realtime channel.
type Emitter interface {
	Emit(event string, payload interface{}) error
}

// Recorder appends an in-app notification record.
type Recorder interface {
	Add(input store.AddInput) model.Notification
}

// SessionFunc supplies the current authenticated session. The sweep
// no-ops entirely when no session exists.
type SessionFunc func() (model.Session, bool)

// Options configures a Monitor. Zero durations fall back to defaults;
// Notifier, Emitter, and Recorder may be nil.
type Options struct {
	Backend       Backend
	Session       SessionFunc
	Notifier      Notifier
	Emitter       Emitter
	Recorder      Recorder
	SweepInterval time.Duration
	SubmitBuffer  time.Duration
	Logger        *zap.Logger
}

// Monitor is a best-effort client-side cron over tracked tasks: every
// tracked task is submitted no later than shortly after its deadline,
// without duplicate or premature submissions. It exclusively owns the
// task registry and the set of in-flight submission markers.
type Monitor struct {
	backend       Backend
	session       SessionFunc
	notifier      Notifier
	emitter       Emitter
	recorder      Recorder
	sweepInterval time.Duration
	submitBuffer  time.Duration
	logger        *zap.Logger

	triggerCh chan struct{}

	mu         sync.Mutex
	tasks      map[string]model.MonitoredTask
	attempting map[string]bool
	running    bool
	stopCh     chan struct{}
}

// New creates a stopped Monitor.
func New(opts Options) *Monitor {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.SubmitBuffer <= 0 {
		opts.SubmitBuffer = DefaultSubmitBuffer
	}
	return &Monitor{
		backend:       opts.Backend,
		session:       opts.Session,
		notifier:      opts.Notifier,
		emitter:       opts.Emitter,
		recorder:      opts.Recorder,
		sweepInterval: opts.SweepInterval,
		submitBuffer:  opts.SubmitBuffer,
		logger:        opts.Logger,
		triggerCh:     make(chan struct{}, 1),
		tasks:         make(map[string]model.MonitoredTask),
		attempting:    make(map[string]bool),
	}
}

// Start launches the periodic sweep loop. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	go m.run(stopCh)
}

// Stop halts the sweep loop. In-flight submissions are not aborted.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.stopCh)
	m.running = false
}

// run is the sweep loop: a fixed-interval ticker plus an out-of-band
// trigger for tasks inserted already overdue.
func (m *Monitor) run(stopCh chan struct{}) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.Sweep(context.Background())
		case <-m.triggerCh:
			m.Sweep(context.Background())
		}
	}
}

// Track inserts or overwrites a monitored task. A task arriving in a
// terminal status is removed instead of stored. A task whose deadline is
// already more than a second past triggers a near-immediate sweep rather
// than waiting out the current tick.
func (m *Monitor) Track(task model.MonitoredTask) {
	if task.ID == "" {
		return
	}

	if task.Status.Terminal() {
		m.Untrack(task.ID)
		return
	}

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	if time.Since(task.Deadline) > time.Second {
		m.requestSweep()
	}
}

// Untrack removes a task and clears its submission marker.
func (m *Monitor) Untrack(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	delete(m.attempting, taskID)
}

// Update merges a partial update into an existing task. Unknown task ids
// are ignored. A merge resulting in a terminal status removes the task.
func (m *Monitor) Update(taskID string, update model.TaskUpdate) {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}

	update.Apply(&task)
	if task.Status.Terminal() {
		delete(m.tasks, taskID)
		delete(m.attempting, taskID)
		m.mu.Unlock()
		return
	}

	m.tasks[taskID] = task
	m.mu.Unlock()

	if time.Since(task.Deadline) > time.Second {
		m.requestSweep()
	}
}

// LoadUserTasks fetches the user's open tasks from the backend and
// registers each for monitoring.
func (m *Monitor) LoadUserTasks(ctx context.Context, userID string) error {
	tasks, err := m.backend.OpenTasks(ctx, userID)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		m.Track(task)
	}

	m.logger.Info("Loaded open tasks for deadline monitoring",
		zap.String("userId", userID), zap.Int("count", len(tasks)))
	return nil
}

// Tasks returns a snapshot of the monitored tasks.
func (m *Monitor) Tasks() []model.MonitoredTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.MonitoredTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out
}

// Tracking reports whether a task is currently monitored.
func (m *Monitor) Tracking(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[taskID]
	return ok
}

// requestSweep schedules an out-of-band sweep without blocking. A sweep
// already pending on the trigger channel covers this request too.
func (m *Monitor) requestSweep() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

// Sweep runs one deadline check over the registry. Tasks in terminal
// states are dropped; due tasks not already being attempted are marked
// and submitted sequentially. The marker check-and-set happens under the
// lock, before any network call, so overlapping sweeps cannot submit the
// same task twice.
func (m *Monitor) Sweep(ctx context.Context) {
	sess, ok := m.session()
	if !ok || !sess.Valid() {
		return
	}

	now := time.Now()

	m.mu.Lock()
	var due []model.MonitoredTask
	for id, task := range m.tasks {
		if task.Status.Terminal() {
			delete(m.tasks, id)
			delete(m.attempting, id)
			continue
		}
		if m.attempting[id] {
			continue
		}
		if !now.Before(task.Deadline.Add(-m.submitBuffer)) {
			m.attempting[id] = true
			due = append(due, task)
		}
	}
	m.mu.Unlock()

	for _, task := range due {
		m.autoSubmit(ctx, task, sess)
	}
}

// autoSubmit submits one overdue task on the user's behalf and settles
// its marker according to the outcome: success and permanent failure both
// end monitoring; transient failure re-arms the task for the next tick.
func (m *Monitor) autoSubmit(ctx context.Context, task model.MonitoredTask, sess model.Session) {
	items, err := m.backend.Checklist(ctx, task.ID)
	if err != nil {
		m.logger.Warn("Checklist fetch failed, will retry next sweep",
			zap.String("taskId", task.ID), zap.Error(err))
		m.clearAttempt(task.ID)
		return
	}

	checklistJSON, err := marshalCompletion(items)
	if err != nil {
		m.logger.Error("Failed to encode checklist state",
			zap.String("taskId", task.ID), zap.Error(err))
		m.clearAttempt(task.ID)
		return
	}

	err = m.backend.SubmitTask(ctx, backend.SubmitRequest{
		TaskID:        task.ID,
		SubmittedBy:   sess.UserID,
		SubmitterRole: sess.Role,
		ChecklistJSON: checklistJSON,
		Notes:         autoSubmitNotes,
	})

	if err == nil {
		m.Untrack(task.ID)
		m.logger.Info("Task auto-submitted at deadline",
			zap.String("taskId", task.ID), zap.String("title", task.Title))

		if m.notifier != nil {
			m.notifier.Show("Task auto-submitted", task.Title)
		}
		if m.recorder != nil {
			m.recorder.Add(store.AddInput{
				Severity: model.SeverityInfo,
				Title:    "Task auto-submitted",
				Message:  "\"" + task.Title + "\" was submitted automatically at its deadline.",
			})
		}
		if m.emitter != nil {
			emitErr := m.emitter.Emit(realtime.EventTaskAutoSubmitted, realtime.AutoSubmittedPayload{
				TaskID:      task.ID,
				SubmittedBy: sess.UserID,
			})
			if emitErr != nil {
				m.logger.Warn("Failed to emit auto-submitted event",
					zap.String("taskId", task.ID), zap.Error(emitErr))
			}
		}
		return
	}

	if backend.IsPermanentSubmitError(err) {
		// The task is already resolved or out of reach; retrying can
		// never succeed.
		m.Untrack(task.ID)
		m.logger.Info("Auto-submit permanently rejected, dropping task",
			zap.String("taskId", task.ID), zap.Error(err))
		return
	}

	m.logger.Warn("Auto-submit failed, will retry next sweep",
		zap.String("taskId", task.ID), zap.Error(err))
	m.clearAttempt(task.ID)
}

// clearAttempt re-arms a task for the next sweep.
func (m *Monitor) clearAttempt(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempting, taskID)
}

// completionState is the per-item shape of the submitted checklist map.
type completionState struct {
	Completed bool   `json:"completed"`
	Notes     string `json:"notes"`
}

// marshalCompletion builds the itemId -> {completed, notes} JSON document
// the submit endpoint expects.
func marshalCompletion(items []model.ChecklistItem) (string, error) {
	completion := make(map[string]completionState, len(items))
	for _, item := range items {
		completion[item.ID] = completionState{
			Completed: item.Completed,
			Notes:     item.Notes,
		}
	}

	data, err := json.Marshal(completion)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
