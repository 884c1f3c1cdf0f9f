package ruledetect

import (
	"fmt"
	"strings"
	"time"

	"activity-analytics/internal/store"
)

// Finding is one triggered rule with its point contribution.
type Finding struct {
	Rule        string
	Description string
	Points      int
}

const (
	RuleFailedLogins    = "FAILED_LOGIN"
	RuleMassExport      = "MASS_EXPORT"
	RuleAfterHours      = "AFTER_HOURS"
	RuleVelocity        = "VELOCITY"
	RulePrivilegeEsc    = "PRIVILEGE_ESCALATION"
	RuleDataDestruction = "DATA_DESTRUCTION"
	RuleLocationAnomaly = "LOCATION_ANOMALY"
	RuleSensitiveAccess = "SENSITIVE_ACCESS"
)

const (
	failedLoginThreshold = 3
	failedLoginWindow    = 15 * time.Minute
	massExportThreshold  = 5
	destructionThreshold = 3
	velocityMinActions   = 30
	velocityWindow       = 10 * time.Minute
	locationIPThreshold  = 3
	workdayStartHour     = 8
	workdayEndHour       = 18
)

type checkFunc func(logs []store.LogRow, now time.Time) *Finding

var checks = []checkFunc{
	checkFailedLogins,
	checkMassExports,
	checkAfterHours,
	checkVelocity,
	checkPrivilegeEscalation,
	checkDataDestruction,
	checkLocationAnomaly,
	checkSensitiveAccess,
}

func checkFailedLogins(logs []store.LogRow, now time.Time) *Finding {
	cutoff := now.Add(-failedLoginWindow)
	count := 0
	for _, l := range logs {
		if l.ActionType == "failed_login" && !l.Timestamp.Before(cutoff) {
			count++
		}
	}
	if count < failedLoginThreshold {
		return nil
	}
	return &Finding{
		Rule:        RuleFailedLogins,
		Description: fmt.Sprintf("%d failed logins within %s", count, failedLoginWindow),
		Points:      25,
	}
}

func checkMassExports(logs []store.LogRow, _ time.Time) *Finding {
	count := countAction(logs, "data_export")
	if count < massExportThreshold {
		return nil
	}
	return &Finding{
		Rule:        RuleMassExport,
		Description: fmt.Sprintf("%d export actions in window", count),
		Points:      25,
	}
}

func checkAfterHours(logs []store.LogRow, _ time.Time) *Finding {
	for _, l := range logs {
		hour := l.Timestamp.UTC().Hour()
		if hour < workdayStartHour || hour >= workdayEndHour {
			return &Finding{
				Rule:        RuleAfterHours,
				Description: fmt.Sprintf("activity at %s outside working hours", l.Timestamp.UTC().Format("15:04")),
				Points:      15,
			}
		}
	}
	return nil
}

func checkVelocity(logs []store.LogRow, _ time.Time) *Finding {
	if len(logs) < velocityMinActions {
		return nil
	}
	span := logs[len(logs)-1].Timestamp.Sub(logs[0].Timestamp)
	if span > velocityWindow {
		return nil
	}
	return &Finding{
		Rule:        RuleVelocity,
		Description: fmt.Sprintf("%d actions within %s", len(logs), span.Round(time.Second)),
		Points:      20,
	}
}

func checkPrivilegeEscalation(logs []store.LogRow, _ time.Time) *Finding {
	for _, l := range logs {
		if l.ActionType == "role_change" || strings.Contains(strings.ToLower(l.ActionDetail.String), "privilege") {
			return &Finding{
				Rule:        RulePrivilegeEsc,
				Description: "privilege or role change observed",
				Points:      40,
			}
		}
	}
	return nil
}

func checkDataDestruction(logs []store.LogRow, _ time.Time) *Finding {
	count := countAction(logs, "data_delete")
	if count < destructionThreshold {
		return nil
	}
	return &Finding{
		Rule:        RuleDataDestruction,
		Description: fmt.Sprintf("%d delete actions in window", count),
		Points:      30,
	}
}

func checkLocationAnomaly(logs []store.LogRow, _ time.Time) *Finding {
	ips := make(map[string]struct{})
	for _, l := range logs {
		if l.IpAddress.Valid && l.IpAddress.String != "" {
			ips[l.IpAddress.String] = struct{}{}
		}
	}
	if len(ips) < locationIPThreshold {
		return nil
	}
	return &Finding{
		Rule:        RuleLocationAnomaly,
		Description: fmt.Sprintf("%d distinct source addresses", len(ips)),
		Points:      20,
	}
}

func checkSensitiveAccess(logs []store.LogRow, _ time.Time) *Finding {
	for _, l := range logs {
		if l.LogType.String == "sensitive" || strings.Contains(strings.ToLower(l.ActionDetail.String), "sensitive") {
			return &Finding{
				Rule:        RuleSensitiveAccess,
				Description: "sensitive resource touched",
				Points:      20,
			}
		}
	}
	return nil
}

func countAction(logs []store.LogRow, actionType string) int {
	count := 0
	for _, l := range logs {
		if l.ActionType == actionType {
			count++
		}
	}
	return count
}
