package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"effortsync/activity"
	"effortsync/models"
)

type fakeToaster struct {
	shown []Notification
}

func (f *fakeToaster) ShowToast(n Notification) { f.shown = append(f.shown, n) }

type fakeAlerter struct {
	permitAnswer bool
	permitCalls  int
	alerts       []Notification
}

func (f *fakeAlerter) Permit() bool {
	f.permitCalls++
	return f.permitAnswer
}

func (f *fakeAlerter) Alert(n Notification) { f.alerts = append(f.alerts, n) }

func startedEvent() models.ChangeEvent {
	return models.ChangeEvent{
		Kind:       models.ChangeWorkEffortStarted,
		Repo:       "docs",
		WorkEffort: models.WorkEffort{ID: "WE-1", Title: "Ship importer", Status: models.WorkEffortActive},
		PrevStatus: string(models.WorkEffortPending),
		NewStatus:  string(models.WorkEffortActive),
	}
}

func TestDecideUnfocusedAlwaysQueues(t *testing.T) {
	for _, state := range []activity.State{activity.StateActive, activity.StateIdle, activity.StateAway} {
		assert.Equal(t, RouteQueued, Decide(state, false, false), "state=%s", state)
	}
}

func TestDecideMatrix(t *testing.T) {
	cases := []struct {
		state     activity.State
		focused   bool
		panelOpen bool
		want      Route
	}{
		{activity.StateActive, true, false, RouteImmediate},
		{activity.StateActive, true, true, RouteQueued},
		{activity.StateIdle, true, false, RouteQueued},
		{activity.StateAway, true, false, RouteQueued},
		{activity.StateActive, false, false, RouteQueued},
	}
	for _, tc := range cases {
		got := Decide(tc.state, tc.focused, tc.panelOpen)
		assert.Equal(t, tc.want, got, "state=%s focused=%v panel=%v", tc.state, tc.focused, tc.panelOpen)
	}
}

func TestFocusedActiveShowsToast(t *testing.T) {
	monitor := activity.NewMonitor()
	toaster := &fakeToaster{}
	center := NewCenter(10)
	router := NewRouter(monitor, center, toaster, nil)

	route := router.HandleChange(startedEvent())

	assert.Equal(t, RouteImmediate, route)
	require.Len(t, toaster.shown, 1)
	assert.Equal(t, "Work effort started", toaster.shown[0].Title)
	assert.Equal(t, "Ship importer", toaster.shown[0].Message)
	assert.Empty(t, center.List())
}

func TestUnfocusedQueuesUnread(t *testing.T) {
	monitor := activity.NewMonitor()
	monitor.SetFocused(false)
	toaster := &fakeToaster{}
	center := NewCenter(10)
	router := NewRouter(monitor, center, toaster, nil)

	route := router.HandleChange(startedEvent())

	assert.Equal(t, RouteQueued, route)
	assert.Empty(t, toaster.shown)
	items := center.List()
	require.Len(t, items, 1)
	assert.False(t, items[0].Read)
	assert.Equal(t, 1, center.Unread())
}

func TestOpenPanelQueuesWithoutBackgroundAlert(t *testing.T) {
	monitor := activity.NewMonitor()
	alerter := &fakeAlerter{permitAnswer: true}
	center := NewCenter(10)
	router := NewRouter(monitor, center, nil, alerter)
	router.SetPanelOpen(true)

	route := router.HandleChange(startedEvent())

	assert.Equal(t, RouteQueued, route)
	assert.Empty(t, alerter.alerts, "focused client gets no background alert")
}

func TestUnfocusedTriggersBackgroundAlertOnce(t *testing.T) {
	monitor := activity.NewMonitor()
	monitor.SetFocused(false)
	alerter := &fakeAlerter{permitAnswer: true}
	router := NewRouter(monitor, NewCenter(10), nil, alerter)

	router.HandleChange(startedEvent())
	router.HandleChange(startedEvent())

	assert.Equal(t, 1, alerter.permitCalls, "permission is requested once")
	assert.Len(t, alerter.alerts, 2)
}

func TestDeniedPermissionSuppressesAlerts(t *testing.T) {
	monitor := activity.NewMonitor()
	monitor.SetFocused(false)
	alerter := &fakeAlerter{permitAnswer: false}
	router := NewRouter(monitor, NewCenter(10), nil, alerter)

	router.HandleChange(startedEvent())
	router.HandleChange(startedEvent())

	assert.Equal(t, 1, alerter.permitCalls)
	assert.Empty(t, alerter.alerts)
}

func TestCenterEvictsOldestPastCapacity(t *testing.T) {
	center := NewCenter(3)
	for i := 1; i <= 5; i++ {
		center.Add(Notification{ID: fmt.Sprintf("n%d", i)})
	}
	items := center.List()
	require.Len(t, items, 3)
	assert.Equal(t, "n5", items[0].ID, "most recent first")
	assert.Equal(t, "n3", items[2].ID, "oldest surviving entry")
}

func TestCenterMarkRead(t *testing.T) {
	center := NewCenter(10)
	center.Add(Notification{ID: "a"})
	center.Add(Notification{ID: "b"})
	center.MarkRead("a")
	assert.Equal(t, 1, center.Unread())
	center.MarkAllRead()
	assert.Equal(t, 0, center.Unread())
}
