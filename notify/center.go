package notify

import "sync"

// DefaultCenterCapacity bounds the notification center.
const DefaultCenterCapacity = 50

// Center is a fixed-capacity, most-recent-first notification list.
// Inserting past capacity evicts the oldest entry.
type Center struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
}

// NewCenter returns a Center bounded at capacity entries. A
// non-positive capacity falls back to the default.
func NewCenter(capacity int) *Center {
	if capacity <= 0 {
		capacity = DefaultCenterCapacity
	}
	return &Center{capacity: capacity}
}

// Add inserts n at the front, evicting the oldest entry past capacity.
func (c *Center) Add(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]Notification{n}, c.items...)
	if len(c.items) > c.capacity {
		c.items = c.items[:c.capacity]
	}
}

// List returns a copy of the notifications, most recent first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Unread returns the number of unread notifications.
func (c *Center) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, n := range c.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead flags the notifications with the given IDs as read.
func (c *Center) MarkRead(ids ...string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if want[c.items[i].ID] {
			c.items[i].Read = true
		}
	}
}

// MarkAllRead flags every notification as read.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		c.items[i].Read = true
	}
}

// Clear removes all notifications.
func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
