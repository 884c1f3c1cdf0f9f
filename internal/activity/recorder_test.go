package activity

import (
	"errors"
	"testing"
	"time"

	"activity-analytics/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Emit(event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func newTestRecorder(users UserSource, sink Sink) *Recorder {
	identity := session.NewIdentity(session.NewMemoryStore())
	return NewRecorder(identity, users, sink, "console-test/1.0")
}

func TestRecordTagsEveryEventWithTheSameSession(t *testing.T) {
	sink := &captureSink{}
	recorder := newTestRecorder(nil, sink)

	recorder.Record("login", map[string]any{"role": "supervisor"})
	recorder.Record("dashboard_action", map[string]any{"action": "view_reports"})
	recorder.Record("logout", nil)

	events := recorder.Events()
	require.Len(t, events, 3)

	sessionID := events[0].SessionID
	require.NotEmpty(t, sessionID)
	for _, event := range events {
		assert.Equal(t, sessionID, event.SessionID)
		assert.Equal(t, "console-test/1.0", event.AgentInfo)
	}
	assert.Equal(t, events, sink.events)
}

func TestRecordTimestampsAreNonDecreasing(t *testing.T) {
	recorder := newTestRecorder(nil, &captureSink{})

	// Simulate a wall clock that steps backwards mid-sequence.
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, time.Second, -2 * time.Second, 3 * time.Second}
	i := 0
	recorder.now = func() time.Time {
		ts := base.Add(offsets[i])
		i++
		return ts
	}

	for range offsets {
		recorder.Record("page_view", nil)
	}

	events := recorder.Events()
	require.Len(t, events, len(offsets))
	for j := 1; j < len(events); j++ {
		assert.False(t, events[j].Timestamp.Before(events[j-1].Timestamp),
			"timestamp %d went backwards", j)
	}
}

func TestRecordCarriesUserWhenSignedIn(t *testing.T) {
	recorder := newTestRecorder(UserSourceFunc(func() (int, bool) { return 42, true }), &captureSink{})
	recorder.Record("data_export", nil)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].HasUser)
	assert.Equal(t, 42, events[0].UserID)
}

func TestRecordAnonymousWhenNobodySignedIn(t *testing.T) {
	recorder := newTestRecorder(AnonymousUser, &captureSink{})
	recorder.Record("failed_login", map[string]any{"username": "ghost"})

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].HasUser)
}

func TestSinkFailureNeverReachesTheCaller(t *testing.T) {
	sink := &captureSink{err: errors.New("broker down")}
	recorder := newTestRecorder(nil, sink)

	assert.NotPanics(t, func() {
		recorder.Record("login", nil)
		recorder.Record("logout", nil)
	})
	assert.Len(t, recorder.Events(), 2)
}

func TestClearDropsBufferButKeepsSession(t *testing.T) {
	recorder := newTestRecorder(nil, &captureSink{})

	recorder.Record("login", nil)
	before := recorder.Events()[0].SessionID

	recorder.Clear()
	assert.Empty(t, recorder.Events())

	recorder.Record("logout", nil)
	assert.Equal(t, before, recorder.Events()[0].SessionID)
}
