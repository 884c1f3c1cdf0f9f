package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"activity-analytics/internal/anomaly"
	"activity-analytics/internal/session"
)

// TokenSource supplies the bearer credential for outgoing requests. Token
// issuance and refresh live elsewhere; this layer only attaches what it is
// given.
type TokenSource func() string

// Client wraps the analytics REST surface. Every request carries the bearer
// token and the scope's session correlation id.
type Client struct {
	baseURL  string
	http     *http.Client
	token    TokenSource
	identity *session.Identity
}

func NewClient(baseURL string, token TokenSource, identity *session.Identity) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		token:    token,
		identity: identity,
	}
}

type runRuleRequest struct {
	WindowHours int `json:"window_hours"`
}

type runRuleResponse struct {
	Detections int `json:"detections"`
}

// RunRuleDetection triggers the rule-based pass. The response body carries
// nothing the aggregator needs; records for display always come from
// ListRuleDetections.
func (c *Client) RunRuleDetection(ctx context.Context, windowHours int) error {
	var resp runRuleResponse
	return c.do(ctx, http.MethodPost, "/api/analytics/run-rule-detection", runRuleRequest{WindowHours: windowHours}, &resp)
}

type baselineRunResponse struct {
	Anomalies []anomaly.BaselineScore `json:"anomalies"`
}

// RunBaselineDetection triggers the statistical baseline pass. When the
// server inlines the scored anomalies they are returned directly; a nil
// slice means the caller must fall back to ListAnomalyScores.
func (c *Client) RunBaselineDetection(ctx context.Context) ([]anomaly.BaselineScore, error) {
	var resp baselineRunResponse
	if err := c.do(ctx, http.MethodPost, "/api/analytics/run-detection", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Anomalies, nil
}

type ruleListResponse struct {
	Detections []anomaly.RuleDetection `json:"detections"`
}

func (c *Client) ListRuleDetections(ctx context.Context, top int, minScore float64) ([]anomaly.RuleDetection, error) {
	query := url.Values{}
	query.Set("top", strconv.Itoa(top))
	query.Set("min_score", strconv.FormatFloat(minScore, 'f', -1, 64))

	var resp ruleListResponse
	if err := c.do(ctx, http.MethodGet, "/api/analytics/rule-based-detections?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

func (c *Client) ListAnomalyScores(ctx context.Context, days int) ([]anomaly.BaselineScore, error) {
	query := url.Values{}
	query.Set("days", strconv.Itoa(days))

	var scores []anomaly.BaselineScore
	if err := c.do(ctx, http.MethodGet, "/api/analytics/anomaly-scores?"+query.Encode(), nil, &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID, err := c.identity.GetOrCreate(); err == nil {
		req.Header.Set("X-Session-Id", sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, apiErrorMessage(resp.Body))
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func apiErrorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Error == "" {
		return "request failed"
	}
	return payload.Error
}
