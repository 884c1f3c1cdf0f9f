package drilldown

import (
	"sync"
	"time"

	"activity-analytics/internal/anomaly"
)

// Selection asks a log viewer to scope itself to one user from a given
// instant. It replaces the original console's DOM broadcast event with a
// contract the compiler can check.
type Selection struct {
	SubjectUserID int
	WindowStart   time.Time
}

// SelectionFor derives the drilldown window from a selected anomaly card.
func SelectionFor(record anomaly.Record) Selection {
	return Selection{
		SubjectUserID: record.SubjectUserID,
		WindowStart:   record.ObservedAt,
	}
}

// Bridge is a broadcast channel between anomaly cards (producers) and log
// viewers (consumers). Neither side knows the other; subscribers registered
// at wiring time receive every published selection in registration order.
type Bridge struct {
	mu          sync.Mutex
	subscribers []func(Selection)
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// Subscribe registers a consumer and returns a function that removes it.
func (b *Bridge) Subscribe(fn func(Selection)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = append(b.subscribers, fn)
	index := len(b.subscribers) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if index < len(b.subscribers) {
			b.subscribers[index] = nil
		}
	}
}

// Publish delivers the selection to every live subscriber synchronously.
func (b *Bridge) Publish(selection Selection) {
	b.mu.Lock()
	subscribers := make([]func(Selection), len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.Unlock()

	for _, fn := range subscribers {
		if fn != nil {
			fn(selection)
		}
	}
}
