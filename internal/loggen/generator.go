package loggen

import (
	"fmt"
	"strings"
	"time"

	"activity-analytics/internal/contracts"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

var roles = []string{"employee", "manager", "contractor", "admin"}

// Profile is one simulated user, stable across the generated window.
type Profile struct {
	UserID   int
	Username string
	Role     string
	IP       string
	Agent    string
}

// Generator produces synthetic activity trails: unremarkable office days
// plus the handful of scripted incidents the detection engines should flag.
type Generator struct {
	faker *gofakeit.Faker
}

func New(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Profiles invents n users. IDs are assigned by the database on insert.
func (g *Generator) Profiles(n int) []Profile {
	profiles := make([]Profile, 0, n)
	for i := 0; i < n; i++ {
		profiles = append(profiles, Profile{
			Username: strings.ToLower(g.faker.Username()),
			Role:     roles[g.faker.IntN(len(roles))],
			IP:       g.faker.IPv4Address(),
			Agent:    g.faker.UserAgent(),
		})
	}
	return profiles
}

// Roll reports true with the given probability.
func (g *Generator) Roll(rate float64) bool {
	return g.faker.Float64Range(0, 1) < rate
}

// NormalDay is an ordinary session: morning login, a spread of page views
// and dashboard actions inside work hours, logout.
func (g *Generator) NormalDay(profile Profile, day time.Time) []contracts.UserActivityPayload {
	session := newSessionID(day)
	start := day.Add(time.Duration(8+g.faker.IntN(2)) * time.Hour)

	events := []contracts.UserActivityPayload{
		g.event(profile, contracts.ActionLogin, session, start),
	}

	cursor := start
	for i := 0; i < 5+g.faker.IntN(10); i++ {
		cursor = cursor.Add(time.Duration(2+g.faker.IntN(40)) * time.Minute)
		action := contracts.ActionPageView
		if g.faker.IntN(4) == 0 {
			action = contracts.ActionDashboardAction
		}
		events = append(events, g.event(profile, action, session, cursor))
	}

	events = append(events, g.event(profile, contracts.ActionLogout, session, cursor.Add(5*time.Minute)))
	return events
}

// Anomalous picks one scripted incident for the day.
func (g *Generator) Anomalous(profile Profile, day time.Time) []contracts.UserActivityPayload {
	switch g.faker.IntN(3) {
	case 0:
		return g.failedLoginBurst(profile, day)
	case 1:
		return g.massExport(profile, day)
	default:
		return g.afterHoursDestruction(profile, day)
	}
}

// failedLoginBurst packs repeated failures into a few minutes, ending in a
// successful login.
func (g *Generator) failedLoginBurst(profile Profile, day time.Time) []contracts.UserActivityPayload {
	session := newSessionID(day)
	start := day.Add(time.Duration(9+g.faker.IntN(3)) * time.Hour)

	var events []contracts.UserActivityPayload
	for i := 0; i < 4+g.faker.IntN(4); i++ {
		events = append(events, g.event(profile, contracts.ActionFailedLogin, session, start.Add(time.Duration(i)*time.Minute)))
	}
	events = append(events, g.event(profile, contracts.ActionLogin, session, start.Add(10*time.Minute)))
	return events
}

// massExport is a login followed by a run of exports well past the rule
// threshold.
func (g *Generator) massExport(profile Profile, day time.Time) []contracts.UserActivityPayload {
	session := newSessionID(day)
	start := day.Add(time.Duration(10+g.faker.IntN(4)) * time.Hour)

	events := []contracts.UserActivityPayload{
		g.event(profile, contracts.ActionLogin, session, start),
	}
	for i := 0; i < 6+g.faker.IntN(5); i++ {
		events = append(events, g.event(profile, contracts.ActionDataExport, session, start.Add(time.Duration(i+1)*2*time.Minute)))
	}
	return events
}

// afterHoursDestruction is a small-hours session deleting data.
func (g *Generator) afterHoursDestruction(profile Profile, day time.Time) []contracts.UserActivityPayload {
	session := newSessionID(day)
	start := day.Add(time.Duration(1+g.faker.IntN(4)) * time.Hour)

	events := []contracts.UserActivityPayload{
		g.event(profile, contracts.ActionLogin, session, start),
	}
	for i := 0; i < 3+g.faker.IntN(3); i++ {
		events = append(events, g.event(profile, contracts.ActionDataDelete, session, start.Add(time.Duration(i+1)*3*time.Minute)))
	}
	return events
}

func (g *Generator) event(profile Profile, action contracts.ActionType, session string, ts time.Time) contracts.UserActivityPayload {
	return contracts.UserActivityPayload{
		UserID:    profile.UserID,
		Type:      action,
		Timestamp: ts.UTC(),
		SessionID: session,
		AgentInfo: profile.Agent,
		Additional: map[string]any{
			"ip_address": profile.IP,
		},
	}
}

func newSessionID(day time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("session-%d-%s", day.UnixMilli(), suffix)
}
