// Package notify decides how change events reach the user: as an
// immediate toast, or queued into the notification center, with an
// optional best-effort background alert when the window is unfocused.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"effortsync/activity"
	"effortsync/models"
)

// Route is the outcome of the routing decision.
type Route string

const (
	RouteImmediate Route = "immediate"
	RouteQueued    Route = "queued"
)

// Decide is the pure routing policy. An event is queued rather than
// shown when the window is unfocused, the user is idle or away, or the
// notification panel is already open. An unfocused window always queues
// regardless of activity state.
func Decide(state activity.State, focused, panelOpen bool) Route {
	if !focused {
		return RouteQueued
	}
	if state != activity.StateActive {
		return RouteQueued
	}
	if panelOpen {
		return RouteQueued
	}
	return RouteImmediate
}

// Notification is a user-facing message derived from a change event.
// It lives only in client memory.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Data      any       `json:"data,omitempty"`
}

// Toaster shows an immediate, transient notification.
type Toaster interface {
	ShowToast(n Notification)
}

// Alerter posts a best-effort background (native) notification. Permit
// is called once before the first alert; a false return suppresses all
// alerts for the session.
type Alerter interface {
	Permit() bool
	Alert(n Notification)
}

// Router consumes change events plus activity state and either shows a
// toast or queues into the Center.
type Router struct {
	monitor *activity.Monitor
	center  *Center
	toaster Toaster
	alerter Alerter

	mu              sync.Mutex
	panelOpen       bool
	permissionAsked bool
	permitted       bool

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// NewRouter wires a Router. toaster and alerter may be nil, in which
// case the corresponding delivery is skipped.
func NewRouter(monitor *activity.Monitor, center *Center, toaster Toaster, alerter Alerter) *Router {
	return &Router{
		monitor: monitor,
		center:  center,
		toaster: toaster,
		alerter: alerter,
		Now:     time.Now,
	}
}

// SetPanelOpen records whether the notification panel is visible. An
// open panel routes new notifications into itself instead of toasting
// over it.
func (r *Router) SetPanelOpen(open bool) {
	r.mu.Lock()
	r.panelOpen = open
	r.mu.Unlock()
}

// HandleChange routes one change event and returns the decision taken.
func (r *Router) HandleChange(ev models.ChangeEvent) Route {
	n := r.build(ev)

	r.mu.Lock()
	panelOpen := r.panelOpen
	r.mu.Unlock()

	focused := r.monitor.Focused()
	route := Decide(r.monitor.State(), focused, panelOpen)

	switch route {
	case RouteImmediate:
		if r.toaster != nil {
			r.toaster.ShowToast(n)
		}
	case RouteQueued:
		r.center.Add(n)
		if !focused {
			r.backgroundAlert(n)
		}
	}
	return route
}

func (r *Router) backgroundAlert(n Notification) {
	if r.alerter == nil {
		return
	}
	r.mu.Lock()
	if !r.permissionAsked {
		r.permissionAsked = true
		r.permitted = r.alerter.Permit()
		if !r.permitted {
			slog.Debug("background notifications not permitted")
		}
	}
	permitted := r.permitted
	r.mu.Unlock()
	if permitted {
		r.alerter.Alert(n)
	}
}

// build derives the user-facing notification from the typed event,
// switching exhaustively over the change kinds.
func (r *Router) build(ev models.ChangeEvent) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Type:      string(ev.Kind),
		Timestamp: r.Now(),
		Data:      ev,
	}

	subject := ev.WorkEffort.Title
	if subject == "" {
		subject = ev.WorkEffort.ID
	}

	switch ev.Kind {
	case models.ChangeWorkEffortCreated:
		n.Title = "New work effort"
		n.Message = subject
	case models.ChangeWorkEffortStarted:
		n.Title = "Work effort started"
		n.Message = subject
	case models.ChangeWorkEffortPaused:
		n.Title = "Work effort paused"
		n.Message = subject
	case models.ChangeWorkEffortBlocked:
		n.Title = "Work effort blocked"
		n.Message = subject
	case models.ChangeWorkEffortCompleted:
		n.Title = "Work effort completed"
		n.Message = subject
	case models.ChangeWorkEffortUpdated:
		n.Title = "Work effort updated"
		n.Message = fmt.Sprintf("%s: %s → %s", subject, ev.PrevStatus, ev.NewStatus)
	case models.ChangeWorkEffortRemoved:
		n.Title = "Work effort removed"
		n.Message = subject
	case models.ChangeTicketCreated:
		n.Title = "New ticket"
		n.Message = ticketSubject(ev)
	case models.ChangeTicketStarted:
		n.Title = "Ticket started"
		n.Message = ticketSubject(ev)
	case models.ChangeTicketBlocked:
		n.Title = "Ticket blocked"
		n.Message = ticketSubject(ev)
	case models.ChangeTicketCompleted:
		n.Title = "Ticket completed"
		n.Message = ticketSubject(ev)
	case models.ChangeTicketUpdated:
		n.Title = "Ticket updated"
		n.Message = ticketSubject(ev)
	case models.ChangeTicketRemoved:
		n.Title = "Ticket removed"
		n.Message = ticketSubject(ev)
	default:
		n.Title = "Change"
		n.Message = subject
	}
	return n
}

func ticketSubject(ev models.ChangeEvent) string {
	if ev.Ticket == nil {
		return ev.WorkEffort.Title
	}
	if ev.Ticket.Title != "" {
		return fmt.Sprintf("%s (%s)", ev.Ticket.Title, ev.WorkEffort.Title)
	}
	return ev.Ticket.ID
}
