package contracts

import (
	"errors"
	"fmt"
	"time"
)

const DomainUserActivity = "user_activity"

// ActionType tags a single recorded console interaction. The open set is
// intentional: dashboards register their own action names and the analytics
// side treats unknown ones as "other".
type ActionType string

const (
	ActionLogin           ActionType = "login"
	ActionFailedLogin     ActionType = "failed_login"
	ActionLogout          ActionType = "logout"
	ActionDashboardAction ActionType = "dashboard_action"
	ActionDataExport      ActionType = "data_export"
	ActionDataDelete      ActionType = "data_delete"
	ActionPageView        ActionType = "page_view"
	ActionOther           ActionType = "other"
)

type UserActivityPayload struct {
	UserID     int            `json:"user_id,omitempty"`
	Type       ActionType     `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id"`
	AgentInfo  string         `json:"agent_info,omitempty"`
	Additional map[string]any `json:"additional,omitempty"`
}

func (p *UserActivityPayload) Validate() error {
	if p == nil {
		return errors.New("payload must not be nil")
	}
	if p.Type == "" {
		return errors.New("type must be set")
	}
	if p.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	if p.SessionID == "" {
		return errors.New("session_id must be set")
	}
	if p.Additional == nil {
		p.Additional = map[string]any{}
	}
	return nil
}

func (e Envelope) UserActivityPayload() (UserActivityPayload, error) {
	if e.Domain != DomainUserActivity {
		return UserActivityPayload{}, fmt.Errorf("expected domain %q, got %q", DomainUserActivity, e.Domain)
	}

	var payload UserActivityPayload
	if err := e.PayloadInto(&payload); err != nil {
		return UserActivityPayload{}, err
	}
	if err := payload.Validate(); err != nil {
		return UserActivityPayload{}, fmt.Errorf("invalid user activity payload: %w", err)
	}
	return payload, nil
}
