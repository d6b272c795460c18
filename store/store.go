// Package store maintains the authoritative in-memory snapshot of every
// tracked repo and derives change events by diffing consecutive snapshots.
package store

import (
	"log/slog"
	"sync"
	"time"

	"effortsync/models"
)

// Store holds the latest RepoState per repo. Updates to a single repo
// are serialized; updates to different repos proceed independently.
type Store struct {
	mu    sync.RWMutex
	repos map[string]*repoEntry

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

type repoEntry struct {
	mu    sync.Mutex
	state models.RepoState
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		repos: make(map[string]*repoEntry),
		Now:   time.Now,
	}
}

func (s *Store) entry(repoName string) *repoEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.repos[repoName]
	if !ok {
		e = &repoEntry{state: models.RepoState{RepoName: repoName}}
		s.repos[repoName] = e
	}
	return e
}

// ApplyUpdate replaces the snapshot for repoName and returns the change
// events derived from diffing the previous snapshot against the new one.
// With an empty parseErr the list is authoritative: records absent from
// it are removed. A non-empty parseErr marks the state as degraded; the
// resolved records are merged over the last-known-good snapshot and no
// removals are inferred, because a partial parse cannot distinguish
// "deleted" from "failed to parse". ApplyUpdate never fails.
func (s *Store) ApplyUpdate(repoName string, workEfforts []models.WorkEffort, stats models.Stats, parseErr string) []models.ChangeEvent {
	e := s.entry(repoName)
	e.mu.Lock()
	defer e.mu.Unlock()

	if parseErr != "" {
		slog.Warn("repo update degraded by parse error", "repo", repoName, "err", parseErr)
		merged := merge(e.state.WorkEfforts, workEfforts)
		events := diff(repoName, e.state.WorkEfforts, merged)
		e.state = models.RepoState{
			RepoName:    repoName,
			WorkEfforts: merged,
			Stats:       models.ComputeStats(merged),
			LastUpdated: s.Now(),
			LastError:   parseErr,
		}
		return events
	}

	events := diff(repoName, e.state.WorkEfforts, workEfforts)
	e.state = models.RepoState{
		RepoName:    repoName,
		WorkEfforts: workEfforts,
		Stats:       stats,
		LastUpdated: s.Now(),
	}
	return events
}

// merge lays resolved records over the previous snapshot, preserving
// records the new partial list is missing.
func merge(old, partial []models.WorkEffort) []models.WorkEffort {
	byID := make(map[string]int, len(partial))
	for i, we := range partial {
		byID[we.ID] = i
	}
	merged := make([]models.WorkEffort, 0, len(old)+len(partial))
	seen := make(map[string]bool, len(old))
	for _, we := range old {
		seen[we.ID] = true
		if i, ok := byID[we.ID]; ok {
			merged = append(merged, partial[i])
		} else {
			merged = append(merged, we)
		}
	}
	for _, we := range partial {
		if !seen[we.ID] {
			merged = append(merged, we)
		}
	}
	return merged
}

// GetState returns a copy of the current state for repoName.
func (s *Store) GetState(repoName string) (models.RepoState, bool) {
	s.mu.RLock()
	e, ok := s.repos[repoName]
	s.mu.RUnlock()
	if !ok {
		return models.RepoState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Snapshot returns the current state of all repos, keyed by repo name.
// Used to build the init message for new connections.
func (s *Store) Snapshot() map[string]models.RepoState {
	s.mu.RLock()
	entries := make(map[string]*repoEntry, len(s.repos))
	for name, e := range s.repos {
		entries[name] = e
	}
	s.mu.RUnlock()

	out := make(map[string]models.RepoState, len(entries))
	for name, e := range entries {
		e.mu.Lock()
		out[name] = e.state
		e.mu.Unlock()
	}
	return out
}

// RemoveRepo drops all state for repoName.
func (s *Store) RemoveRepo(repoName string) {
	s.mu.Lock()
	delete(s.repos, repoName)
	s.mu.Unlock()
}

// Repos returns the names of all repos currently tracked.
func (s *Store) Repos() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.repos))
	for name := range s.repos {
		names = append(names, name)
	}
	return names
}
