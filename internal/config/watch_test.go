package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchPromptFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	changed := make(chan struct{}, 4)
	watcher, err := WatchPrompt(context.Background(), PromptConfig{TemplateFile: path}, func() {
		changed <- struct{}{}
	}, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected change notification after template rewrite")
	}
}

func TestWatchPromptFolderIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan struct{}, 4)
	watcher, err := WatchPrompt(context.Background(), PromptConfig{TemplatesFolder: dir}, func() {
		changed <- struct{}{}
	}, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o600))

	select {
	case <-changed:
		t.Fatalf("non-template files must not trigger reloads")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.tmpl"), []byte("v1"), 0o600))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected change notification for template file")
	}
}

func TestWatchPromptRequiresSource(t *testing.T) {
	_, err := WatchPrompt(context.Background(), PromptConfig{}, func() {}, nil)
	require.Error(t, err)
}
