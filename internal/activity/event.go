package activity

import "time"

// Event is one recorded console interaction. Events are immutable once
// created; the buffer owns them for the lifetime of the process.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	UserID    int            `json:"user_id,omitempty"`
	HasUser   bool           `json:"-"`
	SessionID string         `json:"session_id"`
	AgentInfo string         `json:"agent_info"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// UserSource is the authenticated-session collaborator. CurrentUserID
// reports false when no user is signed in, e.g. while recording failed
// logins.
type UserSource interface {
	CurrentUserID() (int, bool)
}

// UserSourceFunc adapts a function to UserSource.
type UserSourceFunc func() (int, bool)

func (f UserSourceFunc) CurrentUserID() (int, bool) { return f() }

// AnonymousUser is a UserSource with nobody signed in.
var AnonymousUser = UserSourceFunc(func() (int, bool) { return 0, false })
