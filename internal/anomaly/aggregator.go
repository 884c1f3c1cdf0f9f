package anomaly

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RuleDetection is the wire shape of one rule-based detection as returned by
// GET /api/analytics/rule-based-detections.
type RuleDetection struct {
	DetectionID int             `json:"detection_id"`
	UserID      int             `json:"user_id"`
	Username    string          `json:"username,omitempty"`
	RiskScore   float64         `json:"risk_score"`
	RiskLevel   string          `json:"risk_level,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	DetectedAt  string          `json:"detected_at,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	Findings    json.RawMessage `json:"findings,omitempty"`
}

// BaselineScore is the wire shape of one statistical baseline score, either
// embedded in the run-detection response or listed by anomaly-scores.
type BaselineScore struct {
	ScoreID      int           `json:"score_id"`
	UserID       int           `json:"user_id"`
	Username     string        `json:"username,omitempty"`
	RiskScore    float64       `json:"risk_score"`
	RiskLevel    string        `json:"risk_level,omitempty"`
	DeviationPct *float64      `json:"deviation_pct,omitempty"`
	StdPct       *float64      `json:"std_pct,omitempty"`
	Causes       []string      `json:"causes,omitempty"`
	CausesDetail []CauseDetail `json:"causes_detail,omitempty"`
	Explanation  string        `json:"explanation,omitempty"`
	Description  string        `json:"description,omitempty"`
	DetectedAt   string        `json:"detected_at,omitempty"`
	CreatedAt    string        `json:"created_at,omitempty"`
}

type CauseDetail struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// NormalizeRule maps rule detections onto display records, preserving server
// order. Records with missing optional fields are kept and filled with the
// documented fallbacks, never dropped.
func NormalizeRule(raw []RuleDetection) []Record {
	records := make([]Record, 0, len(raw))
	for _, d := range raw {
		records = append(records, Record{
			Kind:            KindRule,
			RiskScore:       d.RiskScore,
			RiskLevel:       ParseRiskLevel(d.RiskLevel),
			SubjectUserID:   d.UserID,
			SubjectUsername: fallbackUsername(d.Username, d.UserID),
			ObservedAt:      observedAt(d.DetectedAt, d.CreatedAt),
			Findings:        parseExplanation(d.Explanation),
			DetectionID:     d.DetectionID,
			SessionID:       d.SessionID,
			rawDetail:       d.Explanation,
		})
	}
	return records
}

// NormalizeBaseline maps baseline scores onto display records. causes_detail
// entries take precedence over the raw causes list when both are present.
func NormalizeBaseline(raw []BaselineScore) []Record {
	records := make([]Record, 0, len(raw))
	for _, s := range raw {
		record := Record{
			Kind:            KindBaseline,
			RiskScore:       s.RiskScore,
			RiskLevel:       ParseRiskLevel(s.RiskLevel),
			SubjectUserID:   s.UserID,
			SubjectUsername: fallbackUsername(s.Username, s.UserID),
			ObservedAt:      observedAt(s.DetectedAt, s.CreatedAt),
			ScoreID:         s.ScoreID,
			DeviationPct:    s.DeviationPct,
			StdPct:          s.StdPct,
			rawDetail:       firstNonEmpty(s.Explanation, s.Description),
		}

		switch {
		case len(s.CausesDetail) > 0:
			for _, c := range s.CausesDetail {
				f := Finding{Label: c.Name, Detail: formatCauseValue(c.Value)}
				if w, ok := causeWeight(c.Value); ok {
					f.Weight = &w
				}
				record.Findings = append(record.Findings, f)
			}
		case len(s.Causes) > 0:
			for _, c := range s.Causes {
				record.Findings = append(record.Findings, Finding{Label: c})
			}
		}

		records = append(records, record)
	}
	return records
}

// parseExplanation splits a pipe-delimited explanation into findings. Each
// fragment splits on the first colon only, so details may themselves contain
// colons ("AFTER_HOURS:02:14 local").
func parseExplanation(explanation string) []Finding {
	if strings.TrimSpace(explanation) == "" {
		return nil
	}

	var findings []Finding
	for _, fragment := range strings.Split(explanation, "|") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		label, detail, found := strings.Cut(fragment, ":")
		if !found {
			findings = append(findings, Finding{Label: fragment})
			continue
		}
		findings = append(findings, Finding{
			Label:  strings.TrimSpace(label),
			Detail: strings.TrimSpace(detail),
		})
	}
	return findings
}

// observedAt resolves the display instant: detected_at wins, then
// created_at, then the zero time for "unknown". Naive timestamps are read
// as UTC.
func observedAt(detectedAt, createdAt string) time.Time {
	for _, raw := range []string{detectedAt, createdAt} {
		if raw == "" {
			continue
		}
		if ts, err := ParseInstant(raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// ParseInstant parses a server timestamp. Values without an explicit offset
// are interpreted as UTC, matching how the backend emits them.
func ParseInstant(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	var lastErr error
	for _, layout := range layouts {
		ts, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func formatCauseValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	case int:
		return strconv.Itoa(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func causeWeight(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
