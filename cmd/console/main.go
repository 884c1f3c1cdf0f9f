package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"activity-analytics/internal/activity"
	"activity-analytics/internal/config"
	"activity-analytics/internal/detection"
	"activity-analytics/internal/drilldown"
	"activity-analytics/internal/logs"
	"activity-analytics/internal/session"

	"github.com/joho/godotenv"
)

func init() {
	if os.Getenv("RUNNING_IN_DOCKER") == "" {
		err := godotenv.Load("../../.env")
		if err != nil {
			log.Println("No .env file found (this is fine in Docker)")
		}
	}
}

func main() {
	cfg, err := config.SetupConsoleConfig()
	if err != nil {
		log.Panic(err)
	}
	defer cfg.Close()

	// With Redis the session scope (and the detection gate) survives console
	// restarts; without it every run is a fresh scope.
	var sessions session.Store = session.NewMemoryStore()
	if cfg.Redis != nil {
		sessions = session.NewRedisStore(cfg.Redis, "console", 24*time.Hour)
	}
	identity := session.NewIdentity(sessions)
	gate := session.NewGate(sessions)

	var sink activity.Sink
	if cfg.Kafka != nil {
		sink = activity.NewKafkaSink(cfg.Kafka, "user-activity", "console")
	}
	recorder := activity.NewRecorder(identity, nil, sink, "console/1.0")
	recorder.Record("page_view", map[string]any{"page": "security_dashboard"})

	token := func() string { return cfg.APIToken }
	apiClient := detection.NewClient(cfg.APIURL, token, identity)
	viewer := logs.NewViewer(logs.NewClient(cfg.APIURL, token, identity), os.Stdout)

	bridge := drilldown.NewBridge()
	detach := viewer.Attach(bridge)
	defer detach()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// First view in a scope triggers the analyses; every later view only
	// re-reads what they produced.
	orchestrator := detection.NewOrchestrator(apiClient, detection.Options{})
	var report detection.Report
	if gate.ShouldTrigger() {
		recorder.Record("dashboard_action", map[string]any{"action": "run_detection"})
		report = orchestrator.Run(ctx)
	} else {
		report = orchestrator.List(ctx)
	}

	if !renderReport(os.Stdout, report, bridge) {
		if err := viewer.ShowLatest(ctx); err != nil {
			log.Printf("Could not fetch logs: %v", err)
		}
	}
}

// renderReport prints the anomaly cards and drills the log viewer into the
// highest-priority record, reporting whether any record was shown. A failed
// branch never hides what the other branch delivered, and records that did
// arrive are rendered even when both branches report errors.
func renderReport(out io.Writer, report detection.Report, bridge *drilldown.Bridge) bool {
	if report.RuleErr != nil {
		log.Printf("Rule detection degraded, showing prior results: %v", report.RuleErr)
	}
	if report.BaselineErr != nil {
		log.Printf("Baseline detection unavailable: %v", report.BaselineErr)
	}

	records := report.Records()
	if len(records) == 0 {
		if report.Failed() {
			log.Printf("Detection unavailable, falling back to the raw log feed")
		} else {
			fmt.Fprintln(out, "No anomalies detected")
		}
		return false
	}

	for _, record := range records {
		observed := "unknown time"
		if !record.ObservedAt.IsZero() {
			observed = record.ObservedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "[%s] %s score=%.0f %s (%s)\n",
			record.RiskLevel, record.SubjectUsername, record.RiskScore, observed, record.Kind)
		if detail := record.DetailText(); detail != "" {
			fmt.Fprintf(out, "    %s\n", detail)
		}
	}

	fmt.Fprintf(out, "\nRecent activity for %s:\n", records[0].SubjectUsername)
	bridge.Publish(drilldown.SelectionFor(records[0]))
	return true
}
