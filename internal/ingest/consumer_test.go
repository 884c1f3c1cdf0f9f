package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"activity-analytics/internal/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogParamsKnownUser(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	params := LogParams(contracts.UserActivityPayload{
		UserID:     7,
		Type:       contracts.ActionDataExport,
		Timestamp:  ts,
		SessionID:  "session-1700000000000-abcd1234",
		AgentInfo:  "console/1.0",
		Additional: map[string]any{"ip_address": "10.0.0.1"},
	})

	assert.True(t, params.UserID.Valid)
	assert.Equal(t, int32(7), params.UserID.Int32)
	assert.Equal(t, "data_export", params.ActionType)
	assert.Equal(t, "session-1700000000000-abcd1234", params.SessionID.String)
	assert.Equal(t, "console/1.0", params.ActionDetail.String)
	assert.Equal(t, "10.0.0.1", params.IpAddress.String)
	assert.Equal(t, ts, params.Timestamp.Time)
}

func TestLogParamsAnonymousUserKeepsNullID(t *testing.T) {
	params := LogParams(contracts.UserActivityPayload{
		Type:      contracts.ActionPageView,
		Timestamp: time.Now(),
		SessionID: "session-1700000000000-abcd1234",
	})

	assert.False(t, params.UserID.Valid)
	assert.False(t, params.IpAddress.Valid)
	assert.False(t, params.ActionDetail.Valid)
}

func TestEnvelopeRoundTripIntoLogParams(t *testing.T) {
	payload, err := json.Marshal(contracts.UserActivityPayload{
		UserID:    3,
		Type:      contracts.ActionLogin,
		Timestamp: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		SessionID: "session-1700000000000-abcd1234",
	})
	require.NoError(t, err)

	raw, err := json.Marshal(contracts.Envelope{
		SpecVersion: contracts.SpecVersionV1,
		Domain:      contracts.DomainUserActivity,
		EventType:   "user_activity.recorded",
		Source:      "console",
		Timestamp:   time.Now(),
		Payload:     payload,
	})
	require.NoError(t, err)

	envelope, err := contracts.ParseEnvelope(raw)
	require.NoError(t, err)
	decoded, err := envelope.UserActivityPayload()
	require.NoError(t, err)

	params := LogParams(decoded)
	assert.Equal(t, int32(3), params.UserID.Int32)
	assert.Equal(t, "login", params.ActionType)
}

func TestEnvelopeWrongDomainRejected(t *testing.T) {
	envelope := contracts.Envelope{
		SpecVersion: contracts.SpecVersionV1,
		Domain:      "billing",
		EventType:   "invoice.created",
		Payload:     json.RawMessage(`{}`),
	}
	_, err := envelope.UserActivityPayload()
	assert.Error(t, err)
}
