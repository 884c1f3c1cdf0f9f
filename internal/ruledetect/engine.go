package ruledetect

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"activity-analytics/internal/store"

	"github.com/jackc/pgx/v5/pgtype"
)

// Detection is one scored rule violation for a user session window.
type Detection struct {
	UserID      int32
	SessionID   string
	RiskScore   int
	RiskLevel   string
	Findings    []Finding
	Explanation string
	DetectedAt  time.Time
}

// Engine runs the rule checks over recent logs and persists detections.
type Engine struct {
	db  *store.Queries
	now func() time.Time
}

func NewEngine(db *store.Queries) *Engine {
	return &Engine{db: db, now: time.Now}
}

// Run scans the lookback window, one pass per (user, session) group, and
// persists every detection. Returns the number of new detections.
func (e *Engine) Run(ctx context.Context, windowHours int) (int, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	now := e.now().UTC()

	logs, err := e.db.ListLogsSince(ctx, now.Add(-time.Duration(windowHours)*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("load logs for rule detection: %w", err)
	}

	count := 0
	for key, group := range groupBySession(logs) {
		detection := CheckSessionLogs(key.userID, key.sessionID, group, now)
		if detection == nil {
			continue
		}

		_, err := e.db.InsertRuleDetection(ctx, store.InsertRuleDetectionParams{
			UserID:      detection.UserID,
			SessionID:   pgtype.Text{String: detection.SessionID, Valid: detection.SessionID != ""},
			RiskScore:   int32(detection.RiskScore),
			RiskLevel:   detection.RiskLevel,
			Explanation: pgtype.Text{String: detection.Explanation, Valid: detection.Explanation != ""},
			DetectedAt:  pgtype.Timestamptz{Time: detection.DetectedAt, Valid: true},
		})
		if err != nil {
			log.Printf("Could not persist detection for user %d: %v", detection.UserID, err)
			continue
		}
		count++
	}
	return count, nil
}

// CheckSessionLogs evaluates every rule against one session's logs. Nil
// means no rule fired. Logs must be in ascending time order.
func CheckSessionLogs(userID int32, sessionID string, logs []store.LogRow, now time.Time) *Detection {
	if len(logs) == 0 {
		return nil
	}

	var findings []Finding
	totalPoints := 0
	for _, check := range checks {
		if finding := check(logs, now); finding != nil {
			findings = append(findings, *finding)
			totalPoints += finding.Points
		}
	}
	if len(findings) == 0 {
		return nil
	}

	// Privilege escalation combined with movement or data tampering is worse
	// than the sum of its parts.
	if hasRule(findings, RulePrivilegeEsc) &&
		(hasRule(findings, RuleLocationAnomaly) || hasRule(findings, RuleMassExport) || hasRule(findings, RuleDataDestruction)) {
		totalPoints = int(float64(totalPoints) * 1.3)
	}

	score := totalPoints
	if score > 100 {
		score = 100
	}

	return &Detection{
		UserID:      userID,
		SessionID:   sessionID,
		RiskScore:   score,
		RiskLevel:   levelFor(score),
		Findings:    findings,
		Explanation: explanationFor(findings),
		DetectedAt:  now,
	}
}

func levelFor(score int) string {
	switch {
	case score >= 90:
		return "Critical Alert"
	case score >= 70:
		return "High Alert"
	case score >= 40:
		return "Medium Alert"
	case score >= 20:
		return "Low Alert"
	default:
		return "Normal"
	}
}

// explanationFor flattens findings into the pipe-delimited wire format the
// console's aggregator parses back apart.
func explanationFor(findings []Finding) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("%s: %s (+%d pts)", f.Rule, f.Description, f.Points))
	}
	return strings.Join(parts, " | ")
}

func hasRule(findings []Finding, rule string) bool {
	for _, f := range findings {
		if f.Rule == rule {
			return true
		}
	}
	return false
}

type sessionKey struct {
	userID    int32
	sessionID string
}

func groupBySession(logs []store.LogRow) map[sessionKey][]store.LogRow {
	groups := make(map[sessionKey][]store.LogRow)
	for _, l := range logs {
		key := sessionKey{userID: l.UserID.Int32, sessionID: l.SessionID.String}
		groups[key] = append(groups[key], l)
	}
	return groups
}
