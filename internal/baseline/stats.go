package baseline

import (
	"math"
	"sort"

	"activity-analytics/internal/store"
)

// Features summarizes one user's activity over a window.
type Features struct {
	TotalActions      float64
	Logins            float64
	UniqueIPs         float64
	ActionsPerSession float64
	OutsideFraction   float64
}

var featureNames = []string{"total_actions", "logins", "unique_ips", "actions_per_session", "outside_fraction"}

func (f Features) get(name string) float64 {
	switch name {
	case "total_actions":
		return f.TotalActions
	case "logins":
		return f.Logins
	case "unique_ips":
		return f.UniqueIPs
	case "actions_per_session":
		return f.ActionsPerSession
	case "outside_fraction":
		return f.OutsideFraction
	default:
		return 0
	}
}

// ComputeFeatures derives the feature vector from raw log rows.
func ComputeFeatures(logs []store.LogRow) Features {
	if len(logs) == 0 {
		return Features{}
	}

	ips := make(map[string]struct{})
	sessions := make(map[string]struct{})
	logins := 0
	outside := 0
	for _, l := range logs {
		if l.IpAddress.Valid && l.IpAddress.String != "" {
			ips[l.IpAddress.String] = struct{}{}
		}
		if l.SessionID.Valid && l.SessionID.String != "" {
			sessions[l.SessionID.String] = struct{}{}
		}
		if l.ActionType == "login" {
			logins++
		}
		hour := l.Timestamp.UTC().Hour()
		if hour < 8 || hour >= 18 {
			outside++
		}
	}

	features := Features{
		TotalActions:    float64(len(logs)),
		Logins:          float64(logins),
		UniqueIPs:       float64(len(ips)),
		OutsideFraction: float64(outside) / float64(len(logs)),
	}
	if len(sessions) > 0 {
		features.ActionsPerSession = float64(len(logs)) / float64(len(sessions))
	} else {
		features.ActionsPerSession = float64(len(logs))
	}
	return features
}

func zscore(value, mean, std float64) float64 {
	if std == 0 {
		std = 1
	}
	return (value - mean) / std
}

// robustStd is a median-absolute-deviation estimate scaled to match a normal
// std, less sensitive to a single wild peer than the plain formula.
func robustStd(values []float64) float64 {
	if len(values) == 0 {
		return 1
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	med := median(sorted)

	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - med)
	}
	sort.Float64s(deviations)

	mad := median(deviations)
	if mad == 0 {
		return 1
	}
	return 1.4826 * mad
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentileMap places a value among its peers on a 0-100 scale.
func percentileMap(value float64, sortedSamples []float64) float64 {
	if len(sortedSamples) == 0 {
		return 0
	}
	below := 0
	for _, s := range sortedSamples {
		if s <= value {
			below++
		}
	}
	return math.Round(100 * float64(below) / float64(len(sortedSamples)))
}
