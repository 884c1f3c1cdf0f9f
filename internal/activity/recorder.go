package activity

import (
	"log"
	"sync"
	"time"

	"activity-analytics/internal/session"
)

// Recorder appends structured events tagged with the scope's session token.
// Record is fire-and-forget instrumentation: it never blocks meaningfully
// and never surfaces an error, so it can be scattered through UI handlers
// without ceremony.
type Recorder struct {
	identity *session.Identity
	users    UserSource
	sink     Sink
	agent    string
	now      func() time.Time

	mu     sync.Mutex
	buffer []Event
	last   time.Time
}

func NewRecorder(identity *session.Identity, users UserSource, sink Sink, agent string) *Recorder {
	if users == nil {
		users = AnonymousUser
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &Recorder{
		identity: identity,
		users:    users,
		sink:     sink,
		agent:    agent,
		now:      time.Now,
	}
}

// Record appends one event to the buffer and forwards it to the sink.
func (r *Recorder) Record(eventType string, payload map[string]any) {
	sessionID, err := r.identity.GetOrCreate()
	if err != nil {
		log.Printf("Could not resolve session id, event %q dropped from correlation: %v", eventType, err)
	}

	event := Event{
		EventType: eventType,
		SessionID: sessionID,
		AgentInfo: r.agent,
		Payload:   payload,
	}
	if id, ok := r.users.CurrentUserID(); ok {
		event.UserID = id
		event.HasUser = true
	}

	r.mu.Lock()
	event.Timestamp = r.now()
	// Timestamps must be non-decreasing within the buffer even if the wall
	// clock steps backwards.
	if event.Timestamp.Before(r.last) {
		event.Timestamp = r.last
	}
	r.last = event.Timestamp
	r.buffer = append(r.buffer, event)
	r.mu.Unlock()

	if err := r.sink.Emit(event); err != nil {
		log.Printf("Activity sink error for %q: %v", eventType, err)
	}
}

// Events returns a copy of everything recorded so far, in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.buffer))
	copy(out, r.buffer)
	return out
}

// Clear drops the buffer. The session token is untouched; only the recorded
// trail goes away.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
}
