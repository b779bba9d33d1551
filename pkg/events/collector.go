package events

import "sync"

// Collector records notifications in arrival order. Used by tests and the
// CLI summary view.
type Collector struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Notify implements Notifier.
func (c *Collector) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, n)
}

// All returns a copy of the recorded notifications.
func (c *Collector) All() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// OfKind returns recorded notifications of the given kind.
func (c *Collector) OfKind(kind Kind) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Notification
	for _, n := range c.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
