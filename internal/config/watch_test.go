package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolve:\n  threshold: 0.8\n"), 0644))

	applied := make(chan *Config, 4)
	w, err := newWatcher(path, func() (*Config, error) {
		return LoadFromPath(path)
	}, func(cfg *Config) {
		applied <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("resolve:\n  threshold: 0.65\n"), 0644))

	select {
	case cfg := <-applied:
		assert.Equal(t, 0.65, cfg.Resolve.Threshold)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not applied")
	}
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolve:\n  threshold: 0.8\n"), 0644))

	applied := make(chan *Config, 4)
	w, err := newWatcher(path, func() (*Config, error) {
		return LoadFromPath(path)
	}, func(cfg *Config) {
		applied <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	// Out-of-range threshold fails validation and must not be applied.
	require.NoError(t, os.WriteFile(path, []byte("resolve:\n  threshold: 7\n"), 0644))
	// A later valid write still goes through.
	require.NoError(t, os.WriteFile(path, []byte("resolve:\n  threshold: 0.9\n"), 0644))

	select {
	case cfg := <-applied:
		assert.Equal(t, 0.9, cfg.Resolve.Threshold)
	case <-time.After(5 * time.Second):
		t.Fatal("valid config change was not applied")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolve:\n  threshold: 0.8\n"), 0644))

	applied := make(chan *Config, 4)
	w, err := newWatcher(path, func() (*Config, error) {
		return LoadFromPath(path)
	}, func(cfg *Config) {
		applied <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	select {
	case <-applied:
		t.Fatal("sibling file write triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}
}
