package anomaly

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
	RiskUnknown  RiskLevel = "Unknown"
)

// ParseRiskLevel maps the server's level strings ("High Alert", "critical",
// ...) onto the display enum. Anything unrecognised, including an absent
// level, becomes Unknown rather than an error.
func ParseRiskLevel(raw string) RiskLevel {
	switch {
	case strings.Contains(strings.ToLower(raw), "critical"):
		return RiskCritical
	case strings.Contains(strings.ToLower(raw), "high"):
		return RiskHigh
	case strings.Contains(strings.ToLower(raw), "medium"):
		return RiskMedium
	case strings.Contains(strings.ToLower(raw), "low"):
		return RiskLow
	default:
		return RiskUnknown
	}
}

// Kind discriminates the two record variants. It is resolved exactly once,
// by the aggregator; render code never infers the variant from which fields
// happen to be present.
type Kind string

const (
	KindRule     Kind = "rule"
	KindBaseline Kind = "baseline"
)

// Finding is one labeled explanation fragment attached to a record.
type Finding struct {
	Label  string
	Detail string
	Weight *float64
}

// Record is the single display model both detection passes normalize into.
type Record struct {
	Kind            Kind
	RiskScore       float64
	RiskLevel       RiskLevel
	SubjectUserID   int
	SubjectUsername string
	ObservedAt      time.Time
	Findings        []Finding

	// Rule variant only.
	DetectionID int
	SessionID   string

	// Baseline variant only.
	ScoreID      int
	DeviationPct *float64
	StdPct       *float64

	// Raw explanation/description text, kept for the no-findings fallback.
	rawDetail string
}

// DetailText renders the findings for a card body. Baseline causes read
// "cpu (92), io (10)"; rule findings keep their label/detail split. When no
// findings survived normalization the raw server text is shown verbatim.
func (r Record) DetailText() string {
	if len(r.Findings) == 0 {
		return r.rawDetail
	}

	parts := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		switch {
		case r.Kind == KindBaseline && f.Detail != "":
			parts = append(parts, fmt.Sprintf("%s (%s)", f.Label, f.Detail))
		case f.Detail != "":
			parts = append(parts, fmt.Sprintf("%s: %s", f.Label, f.Detail))
		default:
			parts = append(parts, f.Label)
		}
	}

	if r.Kind == KindBaseline {
		return strings.Join(parts, ", ")
	}
	return strings.Join(parts, " | ")
}

func fallbackUsername(username string, userID int) string {
	if username != "" {
		return username
	}
	return "User " + strconv.Itoa(userID)
}
