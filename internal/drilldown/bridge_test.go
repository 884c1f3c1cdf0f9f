package drilldown

import (
	"testing"
	"time"

	"activity-analytics/internal/anomaly"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectingAnAnomalyCardEmitsItsUserAndWindow(t *testing.T) {
	records := anomaly.NormalizeRule([]anomaly.RuleDetection{{
		UserID:     7,
		DetectedAt: "2024-01-01T10:00:00",
	}})
	require.Len(t, records, 1)

	bridge := NewBridge()
	var got []Selection
	bridge.Subscribe(func(s Selection) { got = append(got, s) })

	bridge.Publish(SelectionFor(records[0]))

	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].SubjectUserID)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), got[0].WindowStart)
}

func TestPublishReachesAllSubscribersInOrder(t *testing.T) {
	bridge := NewBridge()

	var order []string
	bridge.Subscribe(func(Selection) { order = append(order, "viewer") })
	bridge.Subscribe(func(Selection) { order = append(order, "audit") })

	bridge.Publish(Selection{SubjectUserID: 1})
	assert.Equal(t, []string{"viewer", "audit"}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bridge := NewBridge()

	calls := 0
	unsubscribe := bridge.Subscribe(func(Selection) { calls++ })

	bridge.Publish(Selection{SubjectUserID: 1})
	unsubscribe()
	bridge.Publish(Selection{SubjectUserID: 2})

	assert.Equal(t, 1, calls)
}

func TestPublishWithNoSubscribersIsANoOp(t *testing.T) {
	assert.NotPanics(t, func() {
		NewBridge().Publish(Selection{SubjectUserID: 9})
	})
}
