package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"activity-analytics/internal/session"
)

// Entry is one row of the security log feed.
type Entry struct {
	LogID         int    `json:"log_id"`
	Timestamp     string `json:"timestamp"`
	UserID        int    `json:"user_id"`
	Username      string `json:"username,omitempty"`
	ActionType    string `json:"action_type,omitempty"`
	ActionDetail  string `json:"action_detail,omitempty"`
	SourceAddress string `json:"ip_address,omitempty"`
	LogType       string `json:"log_type,omitempty"`
}

// Filter scopes a log fetch. Zero fields are omitted from the query.
type Filter struct {
	UserID    int
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// Client fetches log entries from the analytics API, newest first.
type Client struct {
	baseURL  string
	http     *http.Client
	token    func() string
	identity *session.Identity
}

func NewClient(baseURL string, token func() string, identity *session.Identity) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		token:    token,
		identity: identity,
	}
}

func (c *Client) Fetch(ctx context.Context, filter Filter) ([]Entry, error) {
	query := url.Values{}
	if filter.UserID != 0 {
		query.Set("user_id", strconv.Itoa(filter.UserID))
	}
	if !filter.StartDate.IsZero() {
		query.Set("start_date", filter.StartDate.UTC().Format(time.RFC3339))
	}
	if !filter.EndDate.IsZero() {
		query.Set("end_date", filter.EndDate.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/logs/?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build logs request: %w", err)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID, err := c.identity.GetOrCreate(); err == nil {
		req.Header.Set("X-Session-Id", sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch logs: %s", resp.Status)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	return entries, nil
}
