package detection

import (
	"context"
	"sync"

	"activity-analytics/internal/anomaly"
)

// Options carry the lookback parameters of the two passes. Zero values get
// the accepted defaults.
type Options struct {
	WindowHours int     // rule-based lookback, default 720h
	Top         int     // rule-based listing size, default 50
	MinScore    float64 // rule-based listing floor
	Days        int     // baseline listing window, default 30
}

func (o Options) withDefaults() Options {
	if o.WindowHours == 0 {
		o.WindowHours = 720
	}
	if o.Top == 0 {
		o.Top = 50
	}
	if o.Days == 0 {
		o.Days = 30
	}
	return o
}

// Report is what a detection run produces. The two passes are independent:
// a branch error never suppresses the other branch's records, so a partial
// failure still renders whatever arrived, flagged with the failed side.
type Report struct {
	Rule     []anomaly.Record
	Baseline []anomaly.Record

	RuleErr     error
	BaselineErr error
}

// Records returns the combined display set, rule detections first, each
// group in the order the server returned it.
func (r Report) Records() []anomaly.Record {
	out := make([]anomaly.Record, 0, len(r.Rule)+len(r.Baseline))
	out = append(out, r.Rule...)
	out = append(out, r.Baseline...)
	return out
}

// Partial reports that exactly one branch failed while the other delivered.
func (r Report) Partial() bool {
	return (r.RuleErr == nil) != (r.BaselineErr == nil)
}

// Failed reports that neither branch delivered anything usable.
func (r Report) Failed() bool {
	return r.RuleErr != nil && r.BaselineErr != nil
}

// Orchestrator coordinates the two detection passes against the analytics
// API and hands their output to the aggregator.
type Orchestrator struct {
	client *Client
	opts   Options
}

func NewOrchestrator(client *Client, opts Options) *Orchestrator {
	return &Orchestrator{client: client, opts: opts.withDefaults()}
}

// Run dispatches both passes concurrently and reconciles the outcome.
//
// Rule branch: the trigger call is fire-and-forget relative to rendering;
// display records always come from the dedicated listing call, so a failed
// trigger still lists whatever the server already has (marked stale via
// RuleErr). Baseline branch: the trigger response is used directly when it
// inlines the scored anomalies, otherwise a fallback listing fetch runs.
//
// Cancelling ctx discards the run; a superseded fetch must not update a
// retired view, so callers cancel before starting a replacement run.
func (o *Orchestrator) Run(ctx context.Context) Report {
	var report Report
	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		report.Rule, report.RuleErr = o.runRulePass(ctx)
	}()

	go func() {
		defer wg.Done()
		report.Baseline, report.BaselineErr = o.runBaselinePass(ctx)
	}()

	wg.Wait()

	if ctx.Err() != nil {
		// Superseded or unmounted: report nothing renderable.
		return Report{RuleErr: ctx.Err(), BaselineErr: ctx.Err()}
	}
	return report
}

// List fetches prior results from both passes without triggering new
// analysis. This is the path for scopes whose detection gate is already
// latched: the expensive server-side runs happened earlier in the scope, and
// the console only needs to re-read what they produced.
func (o *Orchestrator) List(ctx context.Context) Report {
	var report Report
	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		detections, err := o.client.ListRuleDetections(ctx, o.opts.Top, o.opts.MinScore)
		if err != nil {
			report.RuleErr = err
			return
		}
		report.Rule = anomaly.NormalizeRule(detections)
	}()

	go func() {
		defer wg.Done()
		scores, err := o.client.ListAnomalyScores(ctx, o.opts.Days)
		if err != nil {
			report.BaselineErr = err
			return
		}
		report.Baseline = anomaly.NormalizeBaseline(scores)
	}()

	wg.Wait()

	if ctx.Err() != nil {
		return Report{RuleErr: ctx.Err(), BaselineErr: ctx.Err()}
	}
	return report
}

func (o *Orchestrator) runRulePass(ctx context.Context) ([]anomaly.Record, error) {
	triggerErr := o.client.RunRuleDetection(ctx, o.opts.WindowHours)

	detections, listErr := o.client.ListRuleDetections(ctx, o.opts.Top, o.opts.MinScore)
	if listErr != nil {
		return nil, listErr
	}
	return anomaly.NormalizeRule(detections), triggerErr
}

func (o *Orchestrator) runBaselinePass(ctx context.Context) ([]anomaly.Record, error) {
	scores, err := o.client.RunBaselineDetection(ctx)
	if err != nil {
		return nil, err
	}

	if len(scores) == 0 {
		scores, err = o.client.ListAnomalyScores(ctx, o.opts.Days)
		if err != nil {
			return nil, err
		}
	}
	return anomaly.NormalizeBaseline(scores), nil
}
