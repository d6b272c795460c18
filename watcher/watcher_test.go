package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"effortsync/models"
)

func waitForUpdate(t *testing.T, w *Watcher, repo string) Update {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-w.Updates():
			if u.Repo == repo {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for update of %s", repo)
		}
	}
}

func TestAddRepoEmitsInitialSnapshot(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "WE-250601-ab12_x")
	writeFile(t, filepath.Join(dir, "WE-250601-ab12_index.md"), indexDoc)

	w, err := New(50 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	w.Start()

	require.NoError(t, w.AddRepo("docs", root))
	u := waitForUpdate(t, w, "docs")
	require.Len(t, u.WorkEfforts, 1)
	assert.Equal(t, "WE-250601-ab12", u.WorkEfforts[0].ID)
	assert.Empty(t, u.Err)
}

func TestFileChangeTriggersDebouncedRescan(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "WE-250601-ab12_x")
	indexPath := filepath.Join(dir, "WE-250601-ab12_index.md")
	writeFile(t, indexPath, indexDoc)

	w, err := New(50 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	w.Start()
	require.NoError(t, w.AddRepo("docs", root))
	waitForUpdate(t, w, "docs") // initial

	// A burst of writes should coalesce into one rescan that reflects
	// the final content.
	updated := []byte(`---
id: WE-250601-ab12
title: Ship the importer
status: completed
---
done
`)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(indexPath, updated, 0o644))
	}

	u := waitForUpdate(t, w, "docs")
	require.Len(t, u.WorkEfforts, 1)
	assert.Equal(t, models.WorkEffortCompleted, u.WorkEfforts[0].Status)
}

func TestNewWorkEffortDirectoryIsPickedUp(t *testing.T) {
	root := t.TempDir()
	w, err := New(50 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	w.Start()
	require.NoError(t, w.AddRepo("docs", root))
	first := waitForUpdate(t, w, "docs")
	assert.Empty(t, first.WorkEfforts)

	dir := filepath.Join(root, "WE-250601-ab12_x")
	writeFile(t, filepath.Join(dir, "WE-250601-ab12_index.md"), indexDoc)

	u := waitForUpdate(t, w, "docs")
	for len(u.WorkEfforts) == 0 {
		u = waitForUpdate(t, w, "docs")
	}
	assert.Equal(t, "WE-250601-ab12", u.WorkEfforts[0].ID)
}

func TestRemoveRepoStopsUpdates(t *testing.T) {
	root := t.TempDir()
	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	w.Start()
	require.NoError(t, w.AddRepo("docs", root))
	waitForUpdate(t, w, "docs")

	w.RemoveRepo("docs")
	writeFile(t, filepath.Join(root, "WE-250601-ab12_x", "WE-250601-ab12_index.md"), indexDoc)

	select {
	case u := <-w.Updates():
		assert.NotEqual(t, "docs", u.Repo, "removed repo must not emit")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestAddRepoTwiceFails(t *testing.T) {
	w, err := New(DefaultDebounce)
	require.NoError(t, err)
	defer w.Close()
	root := t.TempDir()
	require.NoError(t, w.AddRepo("docs", root))
	assert.Error(t, w.AddRepo("docs", root))
}

func TestBacklogOfInitialSnapshotsAllDeliver(t *testing.T) {
	// Add more repos than the updates channel buffers before draining
	// anything. Overflowing snapshots must be rescheduled, not dropped:
	// every repo's initial snapshot has to arrive once the consumer
	// catches up.
	const repoCount = 24

	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	w.Start()

	for i := 0; i < repoCount; i++ {
		root := t.TempDir()
		dir := filepath.Join(root, "WE-250601-ab12_x")
		writeFile(t, filepath.Join(dir, "WE-250601-ab12_index.md"), indexDoc)
		require.NoError(t, w.AddRepo(fmt.Sprintf("repo-%02d", i), root))
	}

	got := make(map[string]bool)
	deadline := time.After(10 * time.Second)
	for len(got) < repoCount {
		select {
		case u := <-w.Updates():
			require.Len(t, u.WorkEfforts, 1)
			got[u.Repo] = true
		case <-deadline:
			t.Fatalf("received initial snapshots for %d of %d repos", len(got), repoCount)
		}
	}
}
