package client

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"effortsync/activity"
	"effortsync/bus"
	"effortsync/models"
	"effortsync/notify"
	"effortsync/store"
	"effortsync/websocket"
)

// E2ETestSuite drives a real hub over a real websocket: server state
// changes must surface as bus events and routed notifications on the
// client.
type E2ETestSuite struct {
	suite.Suite
	server  *httptest.Server
	store   *store.Store
	hub     *websocket.Hub
	bus     *bus.Bus
	client  *Client
	monitor *activity.Monitor
	center  *notify.Center
	toaster *recordingToaster
	router  *notify.Router

	mu     sync.Mutex
	events []bus.Event
}

type recordingToaster struct {
	mu    sync.Mutex
	shown []notify.Notification
}

func (r *recordingToaster) ShowToast(n notify.Notification) {
	r.mu.Lock()
	r.shown = append(r.shown, n)
	r.mu.Unlock()
}

func (r *recordingToaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

func (s *E2ETestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.store = store.New()
	s.store.ApplyUpdate("alpha", []models.WorkEffort{
		{ID: "WE-1", Title: "Importer", Status: models.WorkEffortPending},
	}, models.Stats{}, "")
	s.store.ApplyUpdate("beta", nil, models.Stats{}, "")

	s.hub = websocket.NewHub(s.store, false)
	r := gin.New()
	r.GET("/ws", websocket.ServeWS(s.hub))
	s.server = httptest.NewServer(r)

	s.bus = bus.New()
	s.events = nil
	s.bus.On("workeffort:*", func(ev bus.Event) {
		s.mu.Lock()
		s.events = append(s.events, ev)
		s.mu.Unlock()
	})

	s.monitor = activity.NewMonitor()
	s.center = notify.NewCenter(20)
	s.toaster = &recordingToaster{}
	s.router = notify.NewRouter(s.monitor, s.center, s.toaster, nil)
	s.bus.On("workeffort:*", func(ev bus.Event) {
		if change, ok := ev.Data.(models.ChangeEvent); ok {
			s.router.HandleChange(change)
		}
	})

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	s.client = New(url, s.bus, WithBackoff(10*time.Millisecond, 100*time.Millisecond))
	s.client.Connect()

	s.Require().Eventually(func() bool {
		return len(s.client.Cache().Snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond, "client should receive init with both repos")
}

func (s *E2ETestSuite) TearDownTest() {
	s.client.Disconnect()
	s.server.Close()
}

func (s *E2ETestSuite) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *E2ETestSuite) applyAndBroadcast(repo string, workEfforts []models.WorkEffort) {
	stats := models.ComputeStats(workEfforts)
	s.store.ApplyUpdate(repo, workEfforts, stats, "")
	s.hub.BroadcastUpdate(repo, workEfforts, stats, "")
}

func (s *E2ETestSuite) TestStatusChangeReachesFocusedClientAsToast() {
	s.applyAndBroadcast("alpha", []models.WorkEffort{
		{ID: "WE-1", Title: "Importer", Status: models.WorkEffortActive},
	})

	s.Require().Eventually(func() bool { return s.eventCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.mu.Lock()
	ev := s.events[0]
	s.mu.Unlock()
	s.Equal("workeffort:started", ev.Type)

	s.Require().Eventually(func() bool { return s.toaster.count() == 1 }, time.Second, 10*time.Millisecond)
	s.Empty(s.center.List(), "focused client with closed panel gets a toast, not a queued entry")
}

func (s *E2ETestSuite) TestStatusChangeQueuesForUnfocusedClient() {
	s.monitor.SetFocused(false)

	s.applyAndBroadcast("alpha", []models.WorkEffort{
		{ID: "WE-1", Title: "Importer", Status: models.WorkEffortActive},
	})

	s.Require().Eventually(func() bool { return len(s.center.List()) == 1 }, 2*time.Second, 10*time.Millisecond)
	items := s.center.List()
	s.False(items[0].Read)
	s.Zero(s.toaster.count())
}

func (s *E2ETestSuite) TestReconnectReceivesFreshInit() {
	s.applyAndBroadcast("alpha", []models.WorkEffort{
		{ID: "WE-1", Title: "Importer", Status: models.WorkEffortActive},
	})
	s.Require().Eventually(func() bool { return s.eventCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Kill the server; the client must notice and retry until the
	// listener returns.
	s.server.CloseClientConnections()

	// Server-side state advances while the client is away. No replay:
	// the client only ever sees the current snapshot.
	done := []models.WorkEffort{{ID: "WE-1", Title: "Importer", Status: models.WorkEffortCompleted}}
	s.store.ApplyUpdate("alpha", done, models.ComputeStats(done), "")

	s.Require().Eventually(func() bool {
		state, ok := s.client.Cache().State("alpha")
		return ok && len(state.WorkEfforts) == 1 && state.WorkEfforts[0].Status == models.WorkEffortCompleted
	}, 5*time.Second, 20*time.Millisecond, "reconnect should deliver a fresh init snapshot")
}

func (s *E2ETestSuite) TestEmptyAuthoritativeUpdateClearsRepo() {
	s.applyAndBroadcast("alpha", nil)

	s.Require().Eventually(func() bool {
		state, ok := s.client.Cache().State("alpha")
		return ok && len(state.WorkEfforts) == 0
	}, 2*time.Second, 10*time.Millisecond)

	state, _ := s.client.Cache().State("alpha")
	s.Empty(state.LastError, "an empty list is authoritative, not a parse error")
}

func TestE2ETestSuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
