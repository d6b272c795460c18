package store

import "effortsync/models"

// diff compares two consecutive full snapshots of a repo's work efforts
// and produces exactly one event per record whose status actually
// changed, plus created/removed events for identity changes. Unchanged
// records yield nothing, so re-applying an identical snapshot is a no-op.
func diff(repo string, old, new []models.WorkEffort) []models.ChangeEvent {
	oldByID := make(map[string]models.WorkEffort, len(old))
	for _, we := range old {
		oldByID[we.ID] = we
	}

	var events []models.ChangeEvent
	seen := make(map[string]bool, len(new))

	for _, we := range new {
		seen[we.ID] = true
		prev, existed := oldByID[we.ID]
		if !existed {
			events = append(events, models.ChangeEvent{
				Kind:       models.ChangeWorkEffortCreated,
				Repo:       repo,
				WorkEffort: we,
				NewStatus:  string(we.Status),
			})
			continue
		}
		if prev.Status != we.Status {
			events = append(events, models.ChangeEvent{
				Kind:       workEffortKind(we.Status),
				Repo:       repo,
				WorkEffort: we,
				PrevStatus: string(prev.Status),
				NewStatus:  string(we.Status),
			})
		}
		events = append(events, diffTickets(repo, prev, we)...)
	}

	for _, we := range old {
		if !seen[we.ID] {
			events = append(events, models.ChangeEvent{
				Kind:       models.ChangeWorkEffortRemoved,
				Repo:       repo,
				WorkEffort: we,
				PrevStatus: string(we.Status),
			})
		}
	}
	return events
}

func diffTickets(repo string, prev, cur models.WorkEffort) []models.ChangeEvent {
	oldByID := make(map[string]models.Ticket, len(prev.Tickets))
	for _, t := range prev.Tickets {
		oldByID[t.ID] = t
	}

	var events []models.ChangeEvent
	seen := make(map[string]bool, len(cur.Tickets))

	for _, t := range cur.Tickets {
		t := t
		seen[t.ID] = true
		old, existed := oldByID[t.ID]
		if !existed {
			events = append(events, models.ChangeEvent{
				Kind:       models.ChangeTicketCreated,
				Repo:       repo,
				WorkEffort: cur,
				Ticket:     &t,
				NewStatus:  string(t.Status),
			})
			continue
		}
		if old.Status != t.Status {
			events = append(events, models.ChangeEvent{
				Kind:       ticketKind(t.Status),
				Repo:       repo,
				WorkEffort: cur,
				Ticket:     &t,
				PrevStatus: string(old.Status),
				NewStatus:  string(t.Status),
			})
		}
	}

	for _, t := range prev.Tickets {
		t := t
		if !seen[t.ID] {
			events = append(events, models.ChangeEvent{
				Kind:       models.ChangeTicketRemoved,
				Repo:       repo,
				WorkEffort: cur,
				Ticket:     &t,
				PrevStatus: string(t.Status),
			})
		}
	}
	return events
}

// workEffortKind maps a destination status to its contextual event kind.
func workEffortKind(to models.WorkEffortStatus) models.ChangeKind {
	switch to {
	case models.WorkEffortActive, models.WorkEffortInProgress:
		return models.ChangeWorkEffortStarted
	case models.WorkEffortPaused:
		return models.ChangeWorkEffortPaused
	case models.WorkEffortBlocked:
		return models.ChangeWorkEffortBlocked
	case models.WorkEffortCompleted:
		return models.ChangeWorkEffortCompleted
	default:
		return models.ChangeWorkEffortUpdated
	}
}

func ticketKind(to models.TicketStatus) models.ChangeKind {
	switch to {
	case models.TicketInProgress:
		return models.ChangeTicketStarted
	case models.TicketBlocked:
		return models.ChangeTicketBlocked
	case models.TicketCompleted:
		return models.ChangeTicketCompleted
	default:
		return models.ChangeTicketUpdated
	}
}
