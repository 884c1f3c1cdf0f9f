package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	UserID   int32
	Username string
	Role     string
}

func (q *Queries) GetUserByID(ctx context.Context, userID int32) (User, error) {
	var user User
	err := q.db.QueryRow(ctx,
		`SELECT user_id, username, role FROM users WHERE user_id = $1`, userID,
	).Scan(&user.UserID, &user.Username, &user.Role)
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	return user, nil
}

func (q *Queries) InsertUser(ctx context.Context, username, role string) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx,
		`INSERT INTO users (username, role) VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role
		 RETURNING user_id`, username, role,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	return id, nil
}

func (q *Queries) EnsureUserExists(ctx context.Context, userID int32) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO users (user_id, username)
		 VALUES ($1, 'user-' || $1::text)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure user %d: %w", userID, err)
	}
	return nil
}

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, `SELECT user_id, username, role FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.UserID, &user.Username, &user.Role); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type InsertLogParams struct {
	UserID       pgtype.Int4
	SessionID    pgtype.Text
	ActionType   string
	ActionDetail pgtype.Text
	IpAddress    pgtype.Text
	LogType      pgtype.Text
	Timestamp    pgtype.Timestamptz
}

func (q *Queries) InsertLog(ctx context.Context, params InsertLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO user_logs (user_id, session_id, action_type, action_detail, ip_address, log_type, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING log_id`,
		params.UserID, params.SessionID, params.ActionType, params.ActionDetail,
		params.IpAddress, params.LogType, params.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	return id, nil
}

type LogRow struct {
	LogID        int64
	UserID       pgtype.Int4
	Username     pgtype.Text
	SessionID    pgtype.Text
	ActionType   string
	ActionDetail pgtype.Text
	IpAddress    pgtype.Text
	LogType      pgtype.Text
	Timestamp    time.Time
}

type ListLogsParams struct {
	UserID    pgtype.Int4
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
}

func (q *Queries) ListLogs(ctx context.Context, params ListLogsParams) ([]LogRow, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.Query(ctx,
		`SELECT l.log_id, l.user_id, u.username, l.session_id, l.action_type,
		        l.action_detail, l.ip_address, l.log_type, l.timestamp
		 FROM user_logs l
		 LEFT JOIN users u ON u.user_id = l.user_id
		 WHERE ($1::int IS NULL OR l.user_id = $1)
		   AND ($2::timestamptz IS NULL OR l.timestamp >= $2)
		   AND ($3::timestamptz IS NULL OR l.timestamp <= $3)
		 ORDER BY l.timestamp DESC
		 LIMIT $4`,
		params.UserID, params.StartDate, params.EndDate, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	return scanLogRows(rows.Next, rows.Scan, rows.Err)
}

// ListLogsSince returns every user's logs from the given instant, oldest
// first, for the detection engines.
func (q *Queries) ListLogsSince(ctx context.Context, since time.Time) ([]LogRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT l.log_id, l.user_id, u.username, l.session_id, l.action_type,
		        l.action_detail, l.ip_address, l.log_type, l.timestamp
		 FROM user_logs l
		 LEFT JOIN users u ON u.user_id = l.user_id
		 WHERE l.timestamp >= $1
		 ORDER BY l.timestamp ASC`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list logs since %s: %w", since, err)
	}
	defer rows.Close()

	return scanLogRows(rows.Next, rows.Scan, rows.Err)
}

func scanLogRows(next func() bool, scan func(...any) error, rowsErr func() error) ([]LogRow, error) {
	var logs []LogRow
	for next() {
		var row LogRow
		err := scan(&row.LogID, &row.UserID, &row.Username, &row.SessionID,
			&row.ActionType, &row.ActionDetail, &row.IpAddress, &row.LogType, &row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		logs = append(logs, row)
	}
	return logs, rowsErr()
}

type InsertRuleDetectionParams struct {
	UserID      int32
	SessionID   pgtype.Text
	RiskScore   int32
	RiskLevel   string
	Explanation pgtype.Text
	DetectedAt  pgtype.Timestamptz
}

func (q *Queries) InsertRuleDetection(ctx context.Context, params InsertRuleDetectionParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO rule_detections (user_id, session_id, risk_score, risk_level, explanation, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING detection_id`,
		params.UserID, params.SessionID, params.RiskScore, params.RiskLevel,
		params.Explanation, params.DetectedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert rule detection: %w", err)
	}
	return id, nil
}

type RuleDetectionRow struct {
	DetectionID int64
	UserID      int32
	Username    pgtype.Text
	SessionID   pgtype.Text
	RiskScore   int32
	RiskLevel   string
	Explanation pgtype.Text
	DetectedAt  time.Time
}

func (q *Queries) ListRuleDetections(ctx context.Context, top int32, minScore float64) ([]RuleDetectionRow, error) {
	if top <= 0 {
		top = 50
	}

	rows, err := q.db.Query(ctx,
		`SELECT d.detection_id, d.user_id, u.username, d.session_id,
		        d.risk_score, d.risk_level, d.explanation, d.detected_at
		 FROM rule_detections d
		 LEFT JOIN users u ON u.user_id = d.user_id
		 WHERE d.risk_score >= $1
		 ORDER BY d.detected_at DESC
		 LIMIT $2`, minScore, top,
	)
	if err != nil {
		return nil, fmt.Errorf("list rule detections: %w", err)
	}
	defer rows.Close()

	var detections []RuleDetectionRow
	for rows.Next() {
		var row RuleDetectionRow
		err := rows.Scan(&row.DetectionID, &row.UserID, &row.Username, &row.SessionID,
			&row.RiskScore, &row.RiskLevel, &row.Explanation, &row.DetectedAt)
		if err != nil {
			return nil, fmt.Errorf("scan rule detection row: %w", err)
		}
		detections = append(detections, row)
	}
	return detections, rows.Err()
}

type InsertAnomalyScoreParams struct {
	UserID       int32
	RiskScore    float64
	RiskLevel    string
	Explanation  pgtype.Text
	DeviationPct pgtype.Float8
	StdPct       pgtype.Float8
	Causes       []byte
	CausesDetail []byte
}

func (q *Queries) InsertAnomalyScore(ctx context.Context, params InsertAnomalyScoreParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO anomaly_scores (user_id, risk_score, risk_level, explanation, deviation_pct, std_pct, causes, causes_detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING score_id`,
		params.UserID, params.RiskScore, params.RiskLevel, params.Explanation,
		params.DeviationPct, params.StdPct, params.Causes, params.CausesDetail,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert anomaly score: %w", err)
	}
	return id, nil
}

type AnomalyScoreRow struct {
	ScoreID      int64
	UserID       int32
	Username     pgtype.Text
	RiskScore    float64
	RiskLevel    string
	Explanation  pgtype.Text
	DeviationPct pgtype.Float8
	StdPct       pgtype.Float8
	Causes       []byte
	CausesDetail []byte
	CreatedAt    time.Time
}

// DecodeCauses unpacks the stored cause list; errors collapse to nil because
// display code substitutes fallbacks for missing detail.
func (r AnomalyScoreRow) DecodeCauses() ([]string, []map[string]any) {
	var causes []string
	if len(r.Causes) > 0 {
		if err := json.Unmarshal(r.Causes, &causes); err != nil {
			causes = nil
		}
	}
	var detail []map[string]any
	if len(r.CausesDetail) > 0 {
		if err := json.Unmarshal(r.CausesDetail, &detail); err != nil {
			detail = nil
		}
	}
	return causes, detail
}

func (q *Queries) ListAnomalyScores(ctx context.Context, since time.Time) ([]AnomalyScoreRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT s.score_id, s.user_id, u.username, s.risk_score, s.risk_level,
		        s.explanation, s.deviation_pct, s.std_pct, s.causes, s.causes_detail, s.created_at
		 FROM anomaly_scores s
		 LEFT JOIN users u ON u.user_id = s.user_id
		 WHERE s.created_at >= $1
		 ORDER BY s.created_at DESC`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list anomaly scores: %w", err)
	}
	defer rows.Close()

	var scores []AnomalyScoreRow
	for rows.Next() {
		var row AnomalyScoreRow
		err := rows.Scan(&row.ScoreID, &row.UserID, &row.Username, &row.RiskScore,
			&row.RiskLevel, &row.Explanation, &row.DeviationPct, &row.StdPct,
			&row.Causes, &row.CausesDetail, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly score row: %w", err)
		}
		scores = append(scores, row)
	}
	return scores, rows.Err()
}
