package desktop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestPermissionDeniedWithoutCapability(t *testing.T) {
	prompts := 0
	b := NewBridge(Options{
		StateDir:  t.TempDir(),
		Available: func() bool { return false },
		Prompter:  func() Permission { prompts++; return PermissionGranted },
		Logger:    zap.NewNop(),
	})

	assert.Equal(t, PermissionDenied, b.RequestPermission())
	assert.Zero(t, prompts, "no prompt without platform capability")
}

func TestRequestPermissionPromptsOnceAndPersists(t *testing.T) {
	dir := t.TempDir()
	prompts := 0
	b := NewBridge(Options{
		StateDir: dir,
		Prompter: func() Permission { prompts++; return PermissionGranted },
		Logger:   zap.NewNop(),
	})

	assert.Equal(t, PermissionGranted, b.RequestPermission())
	assert.Equal(t, PermissionGranted, b.RequestPermission())
	assert.Equal(t, 1, prompts, "the decision is remembered, not re-prompted")

	data, err := os.ReadFile(filepath.Join(dir, "notification-permission"))
	require.NoError(t, err)
	assert.Equal(t, "granted", string(data))
}

func TestRequestPermissionReturnsPersistedDecision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "notification-permission"),
		[]byte("granted"), 0o600,
	))

	prompts := 0
	b := NewBridge(Options{
		StateDir: dir,
		Prompter: func() Permission { prompts++; return PermissionDenied },
		Logger:   zap.NewNop(),
	})

	// Called twice with an existing grant: both return granted and the
	// prompt never fires.
	assert.Equal(t, PermissionGranted, b.RequestPermission())
	assert.Equal(t, PermissionGranted, b.RequestPermission())
	assert.Zero(t, prompts)
}

func TestRequestPermissionRemembersDenial(t *testing.T) {
	dir := t.TempDir()
	b := NewBridge(Options{
		StateDir: dir,
		Prompter: func() Permission { return PermissionDenied },
		Logger:   zap.NewNop(),
	})

	assert.Equal(t, PermissionDenied, b.RequestPermission())

	// A fresh bridge over the same state dir sees the stored denial.
	other := NewBridge(Options{
		StateDir: dir,
		Prompter: func() Permission { return PermissionGranted },
		Logger:   zap.NewNop(),
	})
	assert.Equal(t, PermissionDenied, other.RequestPermission())
}

func TestRequestPermissionUndecidedPrompterIsNotPersisted(t *testing.T) {
	dir := t.TempDir()
	b := NewBridge(Options{
		StateDir: dir,
		Prompter: func() Permission { return PermissionDefault },
		Logger:   zap.NewNop(),
	})

	assert.Equal(t, PermissionDefault, b.RequestPermission())
	_, err := os.Stat(filepath.Join(dir, "notification-permission"))
	assert.True(t, os.IsNotExist(err))
}

func TestShowNoOpsWithoutGrant(t *testing.T) {
	b := NewBridge(Options{
		StateDir:  t.TempDir(),
		Available: func() bool { return false },
		Logger:    zap.NewNop(),
	})

	// Must not panic or block however often it is called.
	b.Show("title", "body")
	b.Show("title", "body")
}
