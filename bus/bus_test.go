package bus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"workeffort:created", "workeffort:created", true},
		{"workeffort:created", "workeffort:completed", false},
		{"workeffort:*", "workeffort:created", true},
		{"workeffort:*", "workeffort:completed", true},
		{"workeffort:*", "ticket:created", false},
		{"ticket:*", "ticket:created", true},
		{"*", "anything:at:all", true},
		{"connection:open", "connection:closed", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(tc.pattern, tc.topic), "Match(%q, %q)", tc.pattern, tc.topic)
	}
}

func TestEmitDeliversToMatchingSubscribers(t *testing.T) {
	b := New()
	var exact, wild, other int
	b.On("workeffort:created", func(Event) { exact++ })
	b.On("workeffort:*", func(Event) { wild++ })
	b.On("ticket:*", func(Event) { other++ })

	b.Emit("workeffort:created", nil)

	assert.Equal(t, 1, exact)
	assert.Equal(t, 1, wild)
	assert.Equal(t, 0, other)
}

func TestOffStopsDelivery(t *testing.T) {
	b := New()
	var calls int
	sub := b.On("a:b", func(Event) { calls++ })
	b.Emit("a:b", nil)
	b.Off(sub)
	b.Emit("a:b", nil)
	assert.Equal(t, 1, calls)
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	b := New()
	var after int
	b.On("a:b", func(Event) { panic("handler bug") })
	b.On("a:b", func(Event) { after++ })

	assert.NotPanics(t, func() { b.Emit("a:b", nil) })
	assert.Equal(t, 1, after)
}

func TestMiddlewareShortCircuits(t *testing.T) {
	b := New()
	var delivered int
	b.On("a:b", func(Event) { delivered++ })
	b.Use(func(ev Event) bool { return ev.Type != "a:b" })

	b.Emit("a:b", nil)
	b.Emit("a:c", nil)
	assert.Equal(t, 0, delivered)
}

func TestMiddlewareOrder(t *testing.T) {
	b := New()
	var order []int
	b.Use(func(Event) bool { order = append(order, 1); return true })
	b.Use(func(Event) bool { order = append(order, 2); return false })
	b.Use(func(Event) bool { order = append(order, 3); return true })

	b.Emit("x:y", nil)
	assert.Equal(t, []int{1, 2}, order)
}

func TestHistoryRingIsBounded(t *testing.T) {
	b := New(WithHistory(3))
	b.Emit("e:1", nil)
	b.Emit("e:2", nil)
	b.Emit("e:3", nil)
	b.Emit("e:4", nil)

	h := b.History()
	require.Len(t, h, 3)
	assert.Equal(t, "e:2", h[0].Type)
	assert.Equal(t, "e:4", h[2].Type)
}

func TestEventCarriesData(t *testing.T) {
	b := New()
	var got any
	b.On("x:*", func(ev Event) { got = ev.Data })
	b.Emit("x:y", 42)
	assert.Equal(t, 42, got)
}

func TestHandlerMayEmitWithoutDeadlock(t *testing.T) {
	b := New()
	var got []string
	b.On("first", func(ev Event) {
		got = append(got, ev.Type)
		b.Emit("second", nil)
	})
	b.On("second", func(ev Event) {
		got = append(got, ev.Type)
	})

	b.Emit("first", nil)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestConcurrentEmitDeliversEverything(t *testing.T) {
	// Handlers run on the emitting goroutine, so handlers sharing state
	// across concurrent Emit calls must lock it themselves.
	b := New()
	var delivered atomic.Int64
	b.On("tick", func(Event) { delivered.Add(1) })

	const emitters, perEmitter = 8, 100
	var wg sync.WaitGroup
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perEmitter; j++ {
				b.Emit("tick", nil)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(emitters*perEmitter), delivered.Load())
}
