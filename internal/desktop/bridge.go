package desktop

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Permission is the user's desktop-notification decision.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"

	// PermissionDefault means no decision has been made yet.
	PermissionDefault Permission = "default"
)

// permissionFile stores the remembered decision inside the config dir.
const permissionFile = "notification-permission"

// Prompter asks the user for a notification permission decision. It is
// invoked at most once; the answer is persisted.
type Prompter func() Permission

// Options configures a Bridge. Nil Prompter grants by default (the agent
// is installed deliberately; an explicit denial is recorded via config).
// Nil Available assumes the platform can display notifications.
type Options struct {
	StateDir  string
	Prompter  Prompter
	Available func() bool
	Logger    *zap.Logger
}

// Bridge negotiates desktop-notification permission once and dispatches
// one-shot notifications. All failure modes degrade to silence; nothing
// here ever propagates an error to callers.
type Bridge struct {
	stateDir  string
	prompter  Prompter
	available func() bool
	logger    *zap.Logger

	mu       sync.Mutex
	decision Permission
	loaded   bool
}

// NewBridge creates a bridge persisting its permission decision under
// opts.StateDir.
func NewBridge(opts Options) *Bridge {
	prompter := opts.Prompter
	if prompter == nil {
		prompter = func() Permission { return PermissionGranted }
	}
	available := opts.Available
	if available == nil {
		available = func() bool { return true }
	}
	return &Bridge{
		stateDir:  opts.StateDir,
		prompter:  prompter,
		available: available,
		logger:    opts.Logger,
	}
}

// RequestPermission returns the current permission, prompting only when
// no prior decision exists. Absent platform capability reads as denied.
// Never returns an error; internal failures read as default.
func (b *Bridge) RequestPermission() Permission {
	if !b.available() {
		return PermissionDenied
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if decision := b.loadLocked(); decision != PermissionDefault {
		return decision
	}

	decision := b.prompter()
	if decision != PermissionGranted && decision != PermissionDenied {
		return PermissionDefault
	}

	b.decision = decision
	b.loaded = true
	b.persistLocked(decision)
	return decision
}

// Show dispatches a desktop notification. It no-ops silently unless
// permission is granted and the platform is capable.
func (b *Bridge) Show(title, body string) {
	if !b.available() {
		return
	}

	b.mu.Lock()
	decision := b.loadLocked()
	b.mu.Unlock()

	if decision != PermissionGranted {
		return
	}

	if err := beeep.Notify(title, body, ""); err != nil {
		b.logger.Warn("Failed to show desktop notification",
			zap.String("title", title), zap.Error(err))
	}
}

// loadLocked returns the cached decision, reading the persisted file on
// first use. Callers must hold mu.
func (b *Bridge) loadLocked() Permission {
	if b.loaded {
		return b.decision
	}
	b.loaded = true
	b.decision = PermissionDefault

	data, err := os.ReadFile(filepath.Join(b.stateDir, permissionFile))
	if err != nil {
		return b.decision
	}

	switch Permission(strings.TrimSpace(string(data))) {
	case PermissionGranted:
		b.decision = PermissionGranted
	case PermissionDenied:
		b.decision = PermissionDenied
	}
	return b.decision
}

// persistLocked writes the decision to the state file. Callers must hold mu.
func (b *Bridge) persistLocked(decision Permission) {
	if err := os.MkdirAll(b.stateDir, 0o755); err != nil {
		b.logger.Warn("Failed to create permission state dir", zap.Error(err))
		return
	}
	path := filepath.Join(b.stateDir, permissionFile)
	if err := os.WriteFile(path, []byte(decision), 0o600); err != nil {
		b.logger.Warn("Failed to persist permission decision", zap.Error(err))
	}
}
