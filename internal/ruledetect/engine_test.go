package ruledetect

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"activity-analytics/internal/store"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func makeLog(action string, ts time.Time, opts ...func(*store.LogRow)) store.LogRow {
	row := store.LogRow{
		UserID:     pgtype.Int4{Int32: 7, Valid: true},
		SessionID:  pgtype.Text{String: "s1", Valid: true},
		ActionType: action,
		Timestamp:  ts,
	}
	for _, opt := range opts {
		opt(&row)
	}
	return row
}

func withIP(ip string) func(*store.LogRow) {
	return func(r *store.LogRow) { r.IpAddress = pgtype.Text{String: ip, Valid: true} }
}

func withDetail(detail string) func(*store.LogRow) {
	return func(r *store.LogRow) { r.ActionDetail = pgtype.Text{String: detail, Valid: true} }
}

func TestNoFindingsMeansNoDetection(t *testing.T) {
	logs := []store.LogRow{
		makeLog("login", testNow.Add(-time.Hour)),
		makeLog("page_view", testNow.Add(-30*time.Minute)),
	}
	assert.Nil(t, CheckSessionLogs(7, "s1", logs, testNow))
}

func TestFailedLoginBurstTriggers(t *testing.T) {
	var logs []store.LogRow
	for i := 0; i < 3; i++ {
		logs = append(logs, makeLog("failed_login", testNow.Add(-time.Duration(i)*time.Minute)))
	}

	detection := CheckSessionLogs(7, "s1", logs, testNow)
	require.NotNil(t, detection)
	assert.Contains(t, detection.Explanation, "FAILED_LOGIN: 3 failed logins")
	assert.Equal(t, 25, detection.RiskScore)
	assert.Equal(t, "Low Alert", detection.RiskLevel)
}

func TestOldFailedLoginsDoNotCount(t *testing.T) {
	var logs []store.LogRow
	for i := 0; i < 5; i++ {
		logs = append(logs, makeLog("failed_login", testNow.Add(-time.Hour)))
	}
	assert.Nil(t, CheckSessionLogs(7, "s1", logs, testNow))
}

func TestExplanationIsPipeDelimitedWithPoints(t *testing.T) {
	logs := []store.LogRow{makeLog("role_change", testNow.Add(-time.Minute))}
	for i := 0; i < massExportThreshold; i++ {
		logs = append(logs, makeLog("data_export", testNow.Add(-time.Duration(i)*time.Minute)))
	}

	detection := CheckSessionLogs(7, "s1", logs, testNow)
	require.NotNil(t, detection)

	fragments := strings.Split(detection.Explanation, " | ")
	require.Len(t, fragments, 2)
	assert.True(t, strings.HasPrefix(fragments[0], "MASS_EXPORT: "))
	assert.True(t, strings.HasPrefix(fragments[1], "PRIVILEGE_ESCALATION: "))
	assert.Contains(t, fragments[1], "(+40 pts)")
}

func TestPrivilegeEscalationComboMultiplier(t *testing.T) {
	logs := []store.LogRow{makeLog("role_change", testNow.Add(-time.Minute))}
	for i := 0; i < massExportThreshold; i++ {
		logs = append(logs, makeLog("data_export", testNow.Add(-time.Duration(i)*time.Minute)))
	}

	detection := CheckSessionLogs(7, "s1", logs, testNow)
	require.NotNil(t, detection)
	// 40 + 25 = 65, * 1.3 = 84
	assert.Equal(t, 84, detection.RiskScore)
	assert.Equal(t, "High Alert", detection.RiskLevel)
}

func TestScoreIsCappedAtHundred(t *testing.T) {
	logs := []store.LogRow{
		makeLog("role_change", testNow.Add(-time.Minute), withIP("10.0.0.1")),
		makeLog("failed_login", testNow.Add(-time.Minute), withIP("10.0.0.2")),
		makeLog("failed_login", testNow.Add(-2*time.Minute), withIP("10.0.0.3")),
		makeLog("failed_login", testNow.Add(-3*time.Minute), withDetail("sensitive payroll")),
	}
	for i := 0; i < massExportThreshold; i++ {
		logs = append(logs, makeLog("data_export", testNow.Add(-time.Duration(i)*time.Minute)))
	}
	for i := 0; i < destructionThreshold; i++ {
		logs = append(logs, makeLog("data_delete", testNow.Add(-time.Duration(i)*time.Minute)))
	}

	detection := CheckSessionLogs(7, "s1", logs, testNow)
	require.NotNil(t, detection)
	assert.Equal(t, 100, detection.RiskScore)
	assert.Equal(t, "Critical Alert", detection.RiskLevel)
}

func TestAfterHoursActivity(t *testing.T) {
	night := time.Date(2024, 3, 1, 2, 14, 0, 0, time.UTC)
	logs := []store.LogRow{makeLog("login", night)}

	detection := CheckSessionLogs(7, "s1", logs, night.Add(time.Minute))
	require.NotNil(t, detection)
	assert.Contains(t, detection.Explanation, "AFTER_HOURS: activity at 02:14")
	assert.Equal(t, "Normal", detection.RiskLevel) // 15 pts is below the Low threshold
}

func TestVelocityAnomaly(t *testing.T) {
	var logs []store.LogRow
	for i := 0; i < velocityMinActions; i++ {
		logs = append(logs, makeLog("page_view", testNow.Add(time.Duration(i)*time.Second)))
	}

	detection := CheckSessionLogs(7, "s1", logs, testNow.Add(time.Minute))
	require.NotNil(t, detection)
	assert.Contains(t, detection.Explanation, "VELOCITY")
}

func TestLocationAnomalyCountsDistinctIPs(t *testing.T) {
	logs := []store.LogRow{
		makeLog("login", testNow.Add(-3*time.Minute), withIP("10.0.0.1")),
		makeLog("page_view", testNow.Add(-2*time.Minute), withIP("10.0.0.2")),
		makeLog("page_view", testNow.Add(-time.Minute), withIP("10.0.0.3")),
	}

	detection := CheckSessionLogs(7, "s1", logs, testNow)
	require.NotNil(t, detection)
	assert.Contains(t, detection.Explanation, "LOCATION_ANOMALY: 3 distinct source addresses")
}

func TestLevelThresholds(t *testing.T) {
	cases := map[int]string{
		100: "Critical Alert",
		90:  "Critical Alert",
		89:  "High Alert",
		70:  "High Alert",
		69:  "Medium Alert",
		40:  "Medium Alert",
		39:  "Low Alert",
		20:  "Low Alert",
		19:  "Normal",
		0:   "Normal",
	}
	for score, want := range cases {
		assert.Equal(t, want, levelFor(score), fmt.Sprintf("score %d", score))
	}
}
