package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"activity-analytics/internal/anomaly"
	"activity-analytics/internal/baseline"
	"activity-analytics/internal/logs"
	"activity-analytics/internal/ruledetect"
	"activity-analytics/internal/store"

	"github.com/jackc/pgx/v5/pgtype"
)

// Server exposes the analytics API: detection triggers, detection listings
// and the raw log feed the console's viewer reads.
type Server struct {
	db     *store.Queries
	rules  *ruledetect.Engine
	scorer *baseline.Scorer
	secret []byte
}

func New(db *store.Queries, rules *ruledetect.Engine, scorer *baseline.Scorer, secret []byte) *Server {
	return &Server{db: db, rules: rules, scorer: scorer, secret: secret}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analytics/run-rule-detection", s.requireAuth(s.handleRunRuleDetection))
	mux.HandleFunc("POST /api/analytics/run-detection", s.requireAuth(s.handleRunDetection))
	mux.HandleFunc("GET /api/analytics/rule-based-detections", s.requireAuth(s.handleListRuleDetections))
	mux.HandleFunc("GET /api/analytics/anomaly-scores", s.requireAuth(s.handleListAnomalyScores))
	mux.HandleFunc("GET /api/logs/", s.requireAuth(s.handleListLogs))
	return mux
}

func (s *Server) handleRunRuleDetection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WindowHours int `json:"window_hours"`
	}
	if err := decodeOptionalBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := s.rules.Run(r.Context(), body.WindowHours)
	if err != nil {
		log.Printf("Rule detection run failed: %v", err)
		writeError(w, http.StatusInternalServerError, "rule detection failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    fmt.Sprintf("Rule detection finished with %d new detections", count),
		"detections": count,
	})
}

func (s *Server) handleRunDetection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Days int `json:"days"`
	}
	if err := decodeOptionalBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scores, err := s.scorer.Run(r.Context(), body.Days)
	if err != nil {
		log.Printf("Baseline detection run failed: %v", err)
		writeError(w, http.StatusInternalServerError, "baseline detection failed")
		return
	}

	anomalies := make([]anomaly.BaselineScore, 0, len(scores))
	for _, score := range scores {
		anomalies = append(anomalies, baselineScoreJSON(score))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   fmt.Sprintf("Baseline detection finished with %d scored users", len(anomalies)),
		"anomalies": anomalies,
	})
}

func (s *Server) handleListRuleDetections(w http.ResponseWriter, r *http.Request) {
	top := queryInt(r, "top", 50)
	minScore := queryFloat(r, "min_score", 0)

	rows, err := s.db.ListRuleDetections(r.Context(), int32(top), minScore)
	if err != nil {
		log.Printf("Could not list rule detections: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list detections")
		return
	}

	detections := make([]anomaly.RuleDetection, 0, len(rows))
	for _, row := range rows {
		detections = append(detections, ruleDetectionJSON(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"detections": detections})
}

func (s *Server) handleListAnomalyScores(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := s.db.ListAnomalyScores(r.Context(), since)
	if err != nil {
		log.Printf("Could not list anomaly scores: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list anomaly scores")
		return
	}

	scores := make([]anomaly.BaselineScore, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, anomalyScoreJSON(row))
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	params := store.ListLogsParams{Limit: int32(queryInt(r, "limit", 100))}

	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		params.UserID = pgtype.Int4{Int32: int32(id), Valid: true}
	}
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		ts, err := anomaly.ParseInstant(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: ts, Valid: true}
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		ts, err := anomaly.ParseInstant(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: ts, Valid: true}
	}

	rows, err := s.db.ListLogs(r.Context(), params)
	if err != nil {
		log.Printf("Could not list logs: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list logs")
		return
	}

	entries := make([]logs.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, logEntryJSON(row))
	}
	writeJSON(w, http.StatusOK, entries)
}

func ruleDetectionJSON(row store.RuleDetectionRow) anomaly.RuleDetection {
	return anomaly.RuleDetection{
		DetectionID: int(row.DetectionID),
		UserID:      int(row.UserID),
		Username:    row.Username.String,
		RiskScore:   float64(row.RiskScore),
		RiskLevel:   row.RiskLevel,
		SessionID:   row.SessionID.String,
		Explanation: row.Explanation.String,
		DetectedAt:  wireTime(row.DetectedAt),
	}
}

func baselineScoreJSON(score baseline.Score) anomaly.BaselineScore {
	out := anomaly.BaselineScore{
		ScoreID:      int(score.ScoreID),
		UserID:       int(score.UserID),
		Username:     score.Username,
		RiskScore:    score.RiskScore,
		RiskLevel:    score.RiskLevel,
		DeviationPct: score.DeviationPct,
		StdPct:       score.StdPct,
		Causes:       score.Causes,
		Explanation:  score.Explanation,
		CreatedAt:    wireTime(score.CreatedAt),
	}
	for _, c := range score.CausesDetail {
		out.CausesDetail = append(out.CausesDetail, anomaly.CauseDetail{Name: c.Name, Value: c.Value})
	}
	return out
}

func anomalyScoreJSON(row store.AnomalyScoreRow) anomaly.BaselineScore {
	out := anomaly.BaselineScore{
		ScoreID:     int(row.ScoreID),
		UserID:      int(row.UserID),
		Username:    row.Username.String,
		RiskScore:   row.RiskScore,
		RiskLevel:   row.RiskLevel,
		Explanation: row.Explanation.String,
		CreatedAt:   wireTime(row.CreatedAt),
	}
	if row.DeviationPct.Valid {
		v := row.DeviationPct.Float64
		out.DeviationPct = &v
	}
	if row.StdPct.Valid {
		v := row.StdPct.Float64
		out.StdPct = &v
	}

	causes, detail := row.DecodeCauses()
	out.Causes = causes
	for _, d := range detail {
		name, _ := d["name"].(string)
		out.CausesDetail = append(out.CausesDetail, anomaly.CauseDetail{Name: name, Value: d["value"]})
	}
	return out
}

func logEntryJSON(row store.LogRow) logs.Entry {
	return logs.Entry{
		LogID:         int(row.LogID),
		Timestamp:     wireTime(row.Timestamp),
		UserID:        int(row.UserID.Int32),
		Username:      row.Username.String,
		ActionType:    row.ActionType,
		ActionDetail:  row.ActionDetail.String,
		SourceAddress: row.IpAddress.String,
		LogType:       row.LogType.String,
	}
}

// wireTime emits naive UTC, the format the console parses back with
// ParseInstant.
func wireTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format("2006-01-02T15:04:05")
}

func decodeOptionalBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// queryFloat matches how the console serializes its score floor, which can
// be fractional.
func queryFloat(r *http.Request, name string, fallback float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
