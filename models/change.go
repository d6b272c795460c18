package models

// ChangeKind discriminates derived change events. Events are computed by
// diffing exactly two consecutive RepoState snapshots and are never stored.
type ChangeKind string

const (
	// Work effort transitions.
	ChangeWorkEffortCreated   ChangeKind = "workeffort:created"
	ChangeWorkEffortStarted   ChangeKind = "workeffort:started"
	ChangeWorkEffortPaused    ChangeKind = "workeffort:paused"
	ChangeWorkEffortBlocked   ChangeKind = "workeffort:blocked"
	ChangeWorkEffortCompleted ChangeKind = "workeffort:completed"
	ChangeWorkEffortUpdated   ChangeKind = "workeffort:updated"
	ChangeWorkEffortRemoved   ChangeKind = "workeffort:removed"

	// Ticket transitions.
	ChangeTicketCreated   ChangeKind = "ticket:created"
	ChangeTicketStarted   ChangeKind = "ticket:started"
	ChangeTicketBlocked   ChangeKind = "ticket:blocked"
	ChangeTicketCompleted ChangeKind = "ticket:completed"
	ChangeTicketUpdated   ChangeKind = "ticket:updated"
	ChangeTicketRemoved   ChangeKind = "ticket:removed"
)

// ChangeEvent describes one observed transition between two consecutive
// snapshots of a repo. Ticket is nil for work-effort level events.
type ChangeEvent struct {
	Kind       ChangeKind `json:"kind"`
	Repo       string     `json:"repo"`
	WorkEffort WorkEffort `json:"workEffort"`
	Ticket     *Ticket    `json:"ticket,omitempty"`
	PrevStatus string     `json:"prevStatus,omitempty"`
	NewStatus  string     `json:"newStatus,omitempty"`
}
