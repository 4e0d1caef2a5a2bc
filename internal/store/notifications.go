package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pharmtask/agent/internal/model"
)

// DefaultMaxRetained caps the notification collection when no explicit
// limit is configured.
const DefaultMaxRetained = 50

// staleAfter is the age past which a reloaded notification is forced to
// read as a hygiene measure.
const staleAfter = 24 * time.Hour

// AddInput is the caller-supplied portion of a new notification.
type AddInput struct {
	Severity    model.Severity
	Title       string
	Message     string
	ScheduledAt *time.Time
}

// NotificationStore is the single source of truth for in-app
// notifications. The collection lives in memory ordered newest-first and
// is mirrored to a local SQLite database on every mutation. Persistence
// failures are logged, never surfaced: a notification that cannot be
// persisted is still held for the rest of the session.
type NotificationStore struct {
	db          *sqlx.DB
	logger      *zap.Logger
	maxRetained int

	mu      sync.Mutex
	records []model.Notification // newest first
}

// NewNotificationStore opens (or creates) the backing SQLite database at
// dbPath, runs migrations, and loads the persisted collection. Records
// older than 24 hours come back marked read. Rows that fail to scan are
// discarded rather than failing the load.
func NewNotificationStore(dbPath string, maxRetained int, logger *zap.Logger) (*NotificationStore, error) {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &NotificationStore{
		db:          db,
		logger:      logger,
		maxRetained: maxRetained,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.load()
	return s, nil
}

// Close closes the underlying database connection.
func (s *NotificationStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *NotificationStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// load reads the persisted collection into memory, applying the stale-read
// hygiene pass and the retention cap.
func (s *NotificationStore) load() {
	rows, err := s.db.Queryx(
		"SELECT id, severity, title, message, scheduled_at, read, created_at FROM notifications",
	)
	if err != nil {
		s.logger.Warn("Failed to load persisted notifications, starting empty",
			zap.Error(err))
		return
	}
	defer rows.Close()

	cutoff := time.Now().Add(-staleAfter)

	var records []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			s.logger.Warn("Discarding unreadable notification row", zap.Error(err))
			continue
		}
		if n.CreatedAt.Before(cutoff) {
			n.Read = true
		}
		records = append(records, n)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("Error iterating persisted notifications", zap.Error(err))
	}

	sortNewestFirst(records)
	if len(records) > s.maxRetained {
		records = records[:s.maxRetained]
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.persist(records)
}

// Add creates a notification from input, prepends it, and enforces the
// retention cap. It always succeeds; the created record is returned.
func (s *NotificationStore) Add(input AddInput) model.Notification {
	n := model.Notification{
		ID:          uuid.New().String(),
		Severity:    input.Severity,
		Title:       input.Title,
		Message:     input.Message,
		ScheduledAt: input.ScheduledAt,
		Read:        false,
		CreatedAt:   time.Now(),
	}
	if n.Severity == "" {
		n.Severity = model.SeverityInfo
	}

	s.mu.Lock()
	s.records = append([]model.Notification{n}, s.records...)
	if len(s.records) > s.maxRetained {
		s.records = s.records[:s.maxRetained]
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return n
}

// Remove deletes a notification by id. Absent ids are a no-op.
func (s *NotificationStore) Remove(id string) {
	s.mu.Lock()
	for i, n := range s.records {
		if n.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
}

// MarkRead marks a single notification as read.
func (s *NotificationStore) MarkRead(id string) {
	s.mu.Lock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Read = true
			break
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
}

// MarkAllRead marks every notification as read.
func (s *NotificationStore) MarkAllRead() {
	s.mu.Lock()
	for i := range s.records {
		s.records[i].Read = true
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
}

// ClearAll empties the collection and the persisted table.
func (s *NotificationStore) ClearAll() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM notifications"); err != nil {
		s.logger.Warn("Failed to clear persisted notifications", zap.Error(err))
	}
}

// LoadMissed merges server-fetched notifications into the collection.
// Records whose id already exists locally are dropped, not overwritten,
// so repeated delivery of the same server record is idempotent. The
// merged collection is re-sorted newest-first and capped.
func (s *NotificationStore) LoadMissed(records []model.Notification) {
	s.mu.Lock()
	seen := make(map[string]bool, len(s.records))
	for _, n := range s.records {
		seen[n.ID] = true
	}

	for _, n := range records {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		n.Severity = model.ParseSeverity(string(n.Severity))
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}
		s.records = append(s.records, n)
	}

	sortNewestFirst(s.records)
	if len(s.records) > s.maxRetained {
		s.records = s.records[:s.maxRetained]
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
}

// All returns a copy of the collection, newest first.
func (s *NotificationStore) All() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// UnreadCount returns how many notifications are unread.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.records {
		if !n.Read {
			count++
		}
	}
	return count
}

// HygienePass marks records older than 24 hours as read. The maintenance
// job runs this daily so stale unread records do not accumulate across a
// long-lived session.
func (s *NotificationStore) HygienePass() {
	cutoff := time.Now().Add(-staleAfter)

	s.mu.Lock()
	changed := false
	for i := range s.records {
		if !s.records[i].Read && s.records[i].CreatedAt.Before(cutoff) {
			s.records[i].Read = true
			changed = true
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.persist(snapshot)
	}
}

// snapshotLocked copies the record slice. Callers must hold mu.
func (s *NotificationStore) snapshotLocked() []model.Notification {
	out := make([]model.Notification, len(s.records))
	copy(out, s.records)
	return out
}

// persist rewrites the full persisted collection inside a transaction.
func (s *NotificationStore) persist(records []model.Notification) {
	tx, err := s.db.Beginx()
	if err != nil {
		s.logger.Warn("Failed to begin persistence transaction", zap.Error(err))
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM notifications"); err != nil {
		s.logger.Warn("Failed to reset persisted notifications", zap.Error(err))
		return
	}

	const query = `
		INSERT INTO notifications (
			id, severity, title, message, scheduled_at, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.Preparex(query)
	if err != nil {
		s.logger.Warn("Failed to prepare persistence statement", zap.Error(err))
		return
	}
	defer stmt.Close()

	for _, n := range records {
		var scheduled interface{}
		if n.ScheduledAt != nil {
			scheduled = n.ScheduledAt.UTC()
		}
		_, err := stmt.Exec(
			n.ID, string(n.Severity), n.Title, n.Message,
			scheduled, boolToInt(n.Read), n.CreatedAt.UTC(),
		)
		if err != nil {
			s.logger.Warn("Failed to persist notification",
				zap.String("id", n.ID), zap.Error(err))
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Warn("Failed to commit notification persistence", zap.Error(err))
	}
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		severity  string
		scheduled *time.Time
		readInt   int
		createdAt time.Time
	)

	err := rows.Scan(
		&n.ID, &severity, &n.Title, &n.Message,
		&scheduled, &readInt, &createdAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Severity = model.ParseSeverity(severity)
	n.ScheduledAt = scheduled
	n.Read = readInt != 0
	n.CreatedAt = createdAt

	return n, nil
}

// sortNewestFirst orders records by creation time descending.
func sortNewestFirst(records []model.Notification) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
