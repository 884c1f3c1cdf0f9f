package logs

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"text/tabwriter"
	"time"

	"activity-analytics/internal/anomaly"
	"activity-analytics/internal/drilldown"
)

const (
	// DefaultLimit is what the standing log panel requests.
	DefaultLimit = 15
	// DrilldownLimit is used when pivoting from a flagged anomaly.
	DrilldownLimit = 20
)

// Viewer renders the security log feed. It subscribes to the drilldown
// bridge so an anomaly card can scope it to one user and time window.
type Viewer struct {
	client *Client
	out    io.Writer
	local  *time.Location
}

func NewViewer(client *Client, out io.Writer) *Viewer {
	return &Viewer{client: client, out: out, local: time.Local}
}

// Attach registers the viewer on the bridge and returns the unsubscribe
// function.
func (v *Viewer) Attach(bridge *drilldown.Bridge) func() {
	return bridge.Subscribe(func(selection drilldown.Selection) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := v.ShowWindow(ctx, selection); err != nil {
			log.Printf("Drilldown fetch failed: %v", err)
		}
	})
}

// ShowWindow fetches and renders the log trail for a drilldown selection.
func (v *Viewer) ShowWindow(ctx context.Context, selection drilldown.Selection) error {
	entries, err := v.client.Fetch(ctx, Filter{
		UserID:    selection.SubjectUserID,
		StartDate: selection.WindowStart,
		Limit:     DrilldownLimit,
	})
	if err != nil {
		return err
	}
	return v.Render(entries)
}

// ShowLatest renders the most recent entries with no scoping.
func (v *Viewer) ShowLatest(ctx context.Context) error {
	entries, err := v.client.Fetch(ctx, Filter{Limit: DefaultLimit})
	if err != nil {
		return err
	}
	return v.Render(entries)
}

func (v *Viewer) Render(entries []Entry) error {
	w := tabwriter.NewWriter(v.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tUSER\tACTION\tDETAIL\tIP\tTYPE")

	if len(entries) == 0 {
		fmt.Fprintln(w, "No logs found")
		return w.Flush()
	}

	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.displayTime(entry.Timestamp),
			Actor(entry),
			orNA(entry.ActionType),
			orNA(entry.ActionDetail),
			orNA(entry.SourceAddress),
			orNA(entry.LogType),
		)
	}
	return w.Flush()
}

// Actor prefers the username and falls back to the raw id.
func Actor(entry Entry) string {
	if entry.Username != "" {
		return entry.Username
	}
	if entry.UserID != 0 {
		return strconv.Itoa(entry.UserID)
	}
	return "N/A"
}

// displayTime converts a server timestamp (naive values read as UTC) to
// local display time.
func (v *Viewer) displayTime(raw string) string {
	if raw == "" {
		return "N/A"
	}
	ts, err := anomaly.ParseInstant(raw)
	if err != nil {
		return raw
	}
	return ts.In(v.local).Format("2006-01-02 15:04:05")
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}
