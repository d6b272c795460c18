package models

import "time"

// WorkEffortStatus is the lifecycle state of a work effort record.
type WorkEffortStatus string

const (
	WorkEffortActive     WorkEffortStatus = "active"
	WorkEffortInProgress WorkEffortStatus = "in_progress"
	WorkEffortPending    WorkEffortStatus = "pending"
	WorkEffortPaused     WorkEffortStatus = "paused"
	WorkEffortBlocked    WorkEffortStatus = "blocked"
	WorkEffortCompleted  WorkEffortStatus = "completed"
)

// Valid reports whether s is one of the known work effort statuses.
func (s WorkEffortStatus) Valid() bool {
	switch s {
	case WorkEffortActive, WorkEffortInProgress, WorkEffortPending,
		WorkEffortPaused, WorkEffortBlocked, WorkEffortCompleted:
		return true
	}
	return false
}

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketPending    TicketStatus = "pending"
	TicketInProgress TicketStatus = "in_progress"
	TicketCompleted  TicketStatus = "completed"
	TicketBlocked    TicketStatus = "blocked"
)

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketPending, TicketInProgress, TicketCompleted, TicketBlocked:
		return true
	}
	return false
}

// Ticket is a sub-task belonging to exactly one work effort.
// Identity by ID is stable across snapshots.
type Ticket struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Status      TicketStatus `json:"status"`
	Description string       `json:"description,omitempty"`
}

// WorkEffort is a top-level task record owned by a repo. Records are
// replaced wholesale on each snapshot; consumers must never mutate one
// in place across snapshot boundaries.
type WorkEffort struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	Status  WorkEffortStatus `json:"status"`
	Created time.Time        `json:"created"`
	Updated time.Time        `json:"updated"`
	Tickets []Ticket         `json:"tickets"`
}

// Stats holds derived counters for one repo's work efforts.
type Stats struct {
	TotalWorkEfforts  int                      `json:"totalWorkEfforts"`
	ByStatus          map[WorkEffortStatus]int `json:"byStatus"`
	TotalTickets      int                      `json:"totalTickets"`
	CompletedTickets  int                      `json:"completedTickets"`
	CompletionPercent float64                  `json:"completionPercent"`
}

// ComputeStats derives Stats from a full work effort list.
func ComputeStats(workEfforts []WorkEffort) Stats {
	s := Stats{
		TotalWorkEfforts: len(workEfforts),
		ByStatus:         make(map[WorkEffortStatus]int),
	}
	for _, we := range workEfforts {
		s.ByStatus[we.Status]++
		for _, t := range we.Tickets {
			s.TotalTickets++
			if t.Status == TicketCompleted {
				s.CompletedTickets++
			}
		}
	}
	if s.TotalTickets > 0 {
		s.CompletionPercent = float64(s.CompletedTickets) / float64(s.TotalTickets) * 100
	}
	return s
}

// RepoState is the authoritative snapshot of one configured repo. All
// client-side state is a derived, eventually-consistent projection of
// the last RepoState received.
type RepoState struct {
	RepoName    string       `json:"repoName"`
	WorkEfforts []WorkEffort `json:"workEfforts"`
	Stats       Stats        `json:"stats"`
	LastUpdated time.Time    `json:"lastUpdated"`
	// LastError records the most recent parse failure for this repo.
	// Work efforts retain their last-known-good values while set.
	LastError string `json:"lastError,omitempty"`
}
