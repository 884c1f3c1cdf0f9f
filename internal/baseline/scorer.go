package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"activity-analytics/internal/store"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
)

const (
	observationWindow = 24 * time.Hour
	userWeight        = 0.6
	peerWeight        = 0.4
	causeThreshold    = 2.0
	emaAlpha          = 0.3
)

// Cause names one feature that pushed the score up, with how far it sat
// from the baseline in standard deviations.
type Cause struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Score is one scored user, ready to persist and to inline into the
// run-detection response.
type Score struct {
	ScoreID      int64
	UserID       int32
	Username     string
	RiskScore    float64
	RiskLevel    string
	DeviationPct *float64
	StdPct       *float64
	Causes       []string
	CausesDetail []Cause
	Explanation  string
	CreatedAt    time.Time
}

// Scorer compares each user's observation window against their own history
// and their role peers, then percentile-maps the combined deviation.
type Scorer struct {
	db  *store.Queries
	rdb *redis.Client
	now func() time.Time
}

func NewScorer(db *store.Queries, rdb *redis.Client) *Scorer {
	return &Scorer{db: db, rdb: rdb, now: time.Now}
}

// Run scores every user over the last 24 hours against a `days`-long
// baseline, persists the scores and returns them newest-context first
// (highest score first).
func (s *Scorer) Run(ctx context.Context, days int) ([]Score, error) {
	if days <= 0 {
		days = 30
	}
	now := s.now().UTC()

	users, err := s.db.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users for baseline scoring: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	baselineStart := now.Add(-time.Duration(days+1) * 24 * time.Hour)
	baselineEnd := now.Add(-observationWindow)

	baselineFeatures := make(map[int32]Features, len(users))
	observed := make(map[int32]Features, len(users))
	roles := make(map[int32]string, len(users))
	for _, user := range users {
		baseLogs, err := s.userLogs(ctx, user.UserID, baselineStart, baselineEnd)
		if err != nil {
			return nil, err
		}
		obsLogs, err := s.userLogs(ctx, user.UserID, now.Add(-observationWindow), now)
		if err != nil {
			return nil, err
		}

		base := ComputeFeatures(baseLogs)
		if s.rdb != nil {
			// The rolling histogram is the habit profile; it replaces the
			// recomputed outside-hours baseline once history has accumulated.
			if err := recordActivityHours(s.rdb, user.UserID, obsLogs); err != nil {
				log.Printf("Activity hour update failed for user %d: %v", user.UserID, err)
			}
			if fraction, ok, err := histogramOutsideFraction(s.rdb, user.UserID); err != nil {
				log.Printf("Activity hour read failed for user %d: %v", user.UserID, err)
			} else if ok {
				base.OutsideFraction = fraction
			}
		}

		baselineFeatures[user.UserID] = base
		observed[user.UserID] = ComputeFeatures(obsLogs)
		roles[user.UserID] = user.Role
	}

	peerStats := peerStatsByRole(users, baselineFeatures)

	type scored struct {
		user     store.User
		combined float64
		causes   []Cause
	}
	var all []scored
	var samples []float64
	for _, user := range users {
		combined, causes := CombineDeviation(observed[user.UserID], baselineFeatures[user.UserID], peerStats[roles[user.UserID]])
		all = append(all, scored{user: user, combined: combined, causes: causes})
		samples = append(samples, combined)
	}
	sort.Float64s(samples)

	var scores []Score
	for _, entry := range all {
		score := Score{
			UserID:       entry.user.UserID,
			Username:     entry.user.Username,
			RiskScore:    percentileMap(entry.combined, samples),
			CausesDetail: entry.causes,
			CreatedAt:    now,
		}
		score.RiskLevel = levelFor(score.RiskScore)
		for _, c := range entry.causes {
			score.Causes = append(score.Causes, c.Name)
		}
		score.Explanation = fmt.Sprintf("Deviation score %.2f, percentile %.0f", entry.combined, score.RiskScore)

		base := baselineFeatures[entry.user.UserID]
		obs := observed[entry.user.UserID]
		deviation := deviationPct(obs.TotalActions, base.TotalActions)
		score.DeviationPct = &deviation

		if s.rdb != nil {
			if ema, err := updateEMA(s.rdb, entry.user.UserID, "combined", entry.combined, emaAlpha); err == nil && ema > 0 {
				std := math.Round(100 * math.Abs(entry.combined-ema) / ema)
				score.StdPct = &std
			} else if err != nil {
				log.Printf("Baseline EMA update failed for user %d: %v", entry.user.UserID, err)
			}
		}

		if err := s.persist(ctx, &score); err != nil {
			log.Printf("Could not persist anomaly score for user %d: %v", score.UserID, err)
			continue
		}
		scores = append(scores, score)
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].RiskScore > scores[j].RiskScore })
	return scores, nil
}

// CombineDeviation blends per-user and peer-group z-scores into one
// deviation value and names the features that drove it.
func CombineDeviation(obs, base Features, peers PeerStats) (float64, []Cause) {
	var userSum, peerSum float64
	var causes []Cause

	for _, name := range featureNames {
		userZ := math.Abs(zscore(obs.get(name), base.get(name), 1))
		peerZ := math.Abs(zscore(obs.get(name), peers.Mean(name), peers.Std(name)))
		userSum += userZ
		peerSum += peerZ

		if featureZ := math.Max(userZ, peerZ); featureZ >= causeThreshold {
			causes = append(causes, Cause{Name: name, Value: math.Round(featureZ*100) / 100})
		}
	}

	n := float64(len(featureNames))
	return userWeight*(userSum/n) + peerWeight*(peerSum/n), causes
}

// PeerStats holds per-feature mean/std across one role's members.
type PeerStats struct {
	means map[string]float64
	stds  map[string]float64
}

func (p PeerStats) Mean(name string) float64 {
	if p.means == nil {
		return 0
	}
	return p.means[name]
}

func (p PeerStats) Std(name string) float64 {
	if p.stds == nil {
		return 1
	}
	return p.stds[name]
}

func peerStatsByRole(users []store.User, features map[int32]Features) map[string]PeerStats {
	byRole := make(map[string][]Features)
	for _, user := range users {
		byRole[user.Role] = append(byRole[user.Role], features[user.UserID])
	}

	stats := make(map[string]PeerStats, len(byRole))
	for role, members := range byRole {
		means := make(map[string]float64, len(featureNames))
		stds := make(map[string]float64, len(featureNames))
		for _, name := range featureNames {
			values := make([]float64, 0, len(members))
			sum := 0.0
			for _, f := range members {
				values = append(values, f.get(name))
				sum += f.get(name)
			}
			means[name] = sum / float64(len(members))
			stds[name] = robustStd(values)
		}
		stats[role] = PeerStats{means: means, stds: stds}
	}
	return stats
}

func (s *Scorer) userLogs(ctx context.Context, userID int32, start, end time.Time) ([]store.LogRow, error) {
	logs, err := s.db.ListLogs(ctx, store.ListLogsParams{
		UserID:    pgtype.Int4{Int32: userID, Valid: true},
		StartDate: pgtype.Timestamptz{Time: start, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: end, Valid: true},
		Limit:     10000,
	})
	if err != nil {
		return nil, fmt.Errorf("load logs for user %d: %w", userID, err)
	}
	return logs, nil
}

func (s *Scorer) persist(ctx context.Context, score *Score) error {
	causes, err := json.Marshal(score.Causes)
	if err != nil {
		return fmt.Errorf("marshal causes: %w", err)
	}
	detail, err := json.Marshal(score.CausesDetail)
	if err != nil {
		return fmt.Errorf("marshal causes detail: %w", err)
	}

	params := store.InsertAnomalyScoreParams{
		UserID:       score.UserID,
		RiskScore:    score.RiskScore,
		RiskLevel:    score.RiskLevel,
		Explanation:  pgtype.Text{String: score.Explanation, Valid: score.Explanation != ""},
		Causes:       causes,
		CausesDetail: detail,
	}
	if score.DeviationPct != nil {
		params.DeviationPct = pgtype.Float8{Float64: *score.DeviationPct, Valid: true}
	}
	if score.StdPct != nil {
		params.StdPct = pgtype.Float8{Float64: *score.StdPct, Valid: true}
	}

	id, err := s.db.InsertAnomalyScore(ctx, params)
	if err != nil {
		return err
	}
	score.ScoreID = id
	return nil
}

func levelFor(score float64) string {
	switch {
	case score >= 90:
		return "High Alert"
	case score >= 70:
		return "Medium Alert"
	case score >= 40:
		return "Low Alert"
	default:
		return "Normal"
	}
}

func deviationPct(observed, base float64) float64 {
	if base == 0 {
		base = 1
	}
	return math.Round(100 * (observed - base) / base)
}
