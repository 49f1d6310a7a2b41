package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/boardflow-core/internal/event"
)

// ExecutedChannel is the broadcast channel for completed rule runs.
const ExecutedChannel = "automation.executed"

const (
	// defaultRuleConcurrency bounds the rules one event executes at once.
	defaultRuleConcurrency = 8

	// DefaultEventConcurrency bounds the events processed at once.
	DefaultEventConcurrency = 32
)

// RuleSource supplies candidate rules. Registry implements it from cache.
type RuleSource interface {
	MatchRules(ctx context.Context, filter RuleFilter) ([]Rule, error)
}

// ActionRunner runs a matched rule's actions. Executor implements it.
type ActionRunner interface {
	Execute(ctx context.Context, rule *Rule, ev *event.DomainEvent) []ActionResult
}

// ExecutionRecorder persists rule runs.
type ExecutionRecorder interface {
	CreateExecution(ctx context.Context, exec *RuleExecution) error
}

// MetricsRecorder receives per-event and per-run measurements.
type MetricsRecorder interface {
	WriteEventProcessed(eventType string, candidates, matched int)
	WriteRuleExecution(workspaceID, ruleID, ruleType, status string, actionsTotal, actionsFailed int, duration time.Duration)
}

// Broadcaster pushes rule runs to live subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// RuleRun is the outcome of one matched rule.
type RuleRun struct {
	Execution RuleExecution  `json:"execution"`
	Results   []ActionResult `json:"results"`
}

// Processor turns domain events into rule runs: candidate lookup, trigger
// and filter matching, then execution. It never returns errors to the
// event loop; everything is logged.
type Processor struct {
	rules   RuleSource
	matcher *Matcher
	runner  ActionRunner

	recorder    ExecutionRecorder
	metrics     MetricsRecorder
	broadcaster Broadcaster
	logger      Logger

	ruleConcurrency int
	events          *semaphore.Weighted
	wg              sync.WaitGroup
}

// NewProcessor creates a processor with DefaultEventConcurrency event slots.
//
// Parameters:
//   - rules: candidate lookup, normally the cached Registry
//   - matcher: trigger and filter evaluation
//   - runner: action execution; nil matches rules without running actions
//
// Optional collaborators (recorder, metrics, broadcaster, logger) are set
// with the Set* methods before the first Process call.
//
// Thread Safety:
//
//	Process, Run and Wait are safe for concurrent use. The Set* methods are
//	not and must be called during wiring only.
func NewProcessor(rules RuleSource, matcher *Matcher, runner ActionRunner) *Processor {
	return &Processor{
		rules:           rules,
		matcher:         matcher,
		runner:          runner,
		logger:          noopLogger{},
		ruleConcurrency: defaultRuleConcurrency,
		events:          semaphore.NewWeighted(DefaultEventConcurrency),
	}
}

// SetEventConcurrency replaces the number of event slots. Values below one
// are ignored.
func (p *Processor) SetEventConcurrency(n int) {
	if n > 0 {
		p.events = semaphore.NewWeighted(int64(n))
	}
}

// SetLogger sets the logger.
func (p *Processor) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// SetRecorder enables the execution log.
func (p *Processor) SetRecorder(recorder ExecutionRecorder) { p.recorder = recorder }

// SetMetrics enables metrics.
func (p *Processor) SetMetrics(metrics MetricsRecorder) { p.metrics = metrics }

// SetBroadcaster enables live run broadcasts.
func (p *Processor) SetBroadcaster(b Broadcaster) { p.broadcaster = b }

// Process handles ev in the background. It returns as soon as an event
// slot is free, so a saturated processor holds back the caller's loop
// rather than growing without bound.
//
// Once started, the work outlives ctx cancellation; use Wait to drain it.
// An event that is still waiting for a slot when ctx is cancelled is
// dropped and logged.
func (p *Processor) Process(ctx context.Context, ev event.DomainEvent) {
	if err := p.events.Acquire(ctx, 1); err != nil {
		p.logger.Warn("event dropped while waiting for a processing slot",
			"event_id", ev.EventID,
			"type", ev.Type,
			"error", err,
		)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.events.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("automation processor panic recovered",
					"event_id", ev.EventID,
					"panic", r,
				)
			}
		}()
		p.Run(context.WithoutCancel(ctx), ev)
	}()
}

// Wait blocks until every event passed to Process has been handled.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Run handles ev synchronously and returns the runs of every matched rule
// in candidate order.
func (p *Processor) Run(ctx context.Context, ev event.DomainEvent) []RuleRun {
	filter, ok := CandidateFilter(&ev)
	if !ok {
		p.logger.Debug("event fires no rule types", "event_id", ev.EventID, "type", ev.Type)
		p.recordEvent(ev.Type, 0, 0)
		return nil
	}

	candidates, err := p.rules.MatchRules(ctx, filter)
	if err != nil {
		p.logger.Error("loading candidate rules failed",
			"event_id", ev.EventID,
			"workspace_id", ev.WorkspaceID,
			"error", err,
		)
		return nil
	}

	var matched []Rule
	for i := range candidates {
		m := p.matcher.Match(ctx, &candidates[i], &ev)
		if m.Matched {
			matched = append(matched, candidates[i])
			continue
		}
		p.logger.Debug("rule did not match",
			"rule_id", candidates[i].ID,
			"event_id", ev.EventID,
			"reason", m.Reason,
		)
	}
	p.recordEvent(ev.Type, len(candidates), len(matched))

	runs := make([]RuleRun, len(matched))
	g := new(errgroup.Group)
	g.SetLimit(p.ruleConcurrency)
	for i := range matched {
		g.Go(func() error {
			runs[i] = p.runRule(ctx, &matched[i], &ev)
			return nil
		})
	}
	_ = g.Wait()
	return runs
}

func (p *Processor) runRule(ctx context.Context, rule *Rule, ev *event.DomainEvent) (run RuleRun) {
	started := time.Now().UTC()
	exec := RuleExecution{
		ID:           GenerateID(),
		RuleID:       rule.ID,
		WorkspaceID:  ev.WorkspaceID,
		EventID:      ev.EventID,
		EventType:    string(ev.Type),
		ActionsTotal: len(rule.Actions),
		StartedAt:    started,
	}

	defer func() {
		if r := recover(); r != nil {
			exec.Status = StatusFailed
			exec.Failures = []ActionFailure{{ErrorMsg: fmt.Sprintf("rule run panicked: %v", r)}}
			exec.ActionsFailed = exec.ActionsTotal
			run = p.finish(ctx, rule, exec, nil)
		}
	}()

	results := p.runner.Execute(ctx, rule, ev)
	exec.Status, exec.Failures = summarize(results)
	exec.ActionsFailed = len(exec.Failures)
	return p.finish(ctx, rule, exec, results)
}

func (p *Processor) finish(ctx context.Context, rule *Rule, exec RuleExecution, results []ActionResult) RuleRun {
	completed := time.Now().UTC()
	duration := completed.Sub(exec.StartedAt)
	ms := int(duration.Milliseconds())
	exec.CompletedAt = &completed
	exec.DurationMS = &ms

	p.logger.Info("automation rule executed",
		"rule_id", rule.ID,
		"workspace_id", exec.WorkspaceID,
		"event_id", exec.EventID,
		"event_type", exec.EventType,
		"status", exec.Status,
		"actions_total", exec.ActionsTotal,
		"actions_failed", exec.ActionsFailed,
		"duration_ms", ms,
	)

	if p.recorder != nil {
		if err := p.recorder.CreateExecution(ctx, &exec); err != nil {
			p.logger.Error("recording rule execution failed", "rule_id", rule.ID, "error", err)
		}
	}
	if p.metrics != nil {
		p.metrics.WriteRuleExecution(exec.WorkspaceID, rule.ID, string(rule.Type), string(exec.Status),
			exec.ActionsTotal, exec.ActionsFailed, duration)
	}
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(ExecutedChannel, map[string]any{
			"workspace_id": exec.WorkspaceID,
			"rule_id":      rule.ID,
			"event_id":     exec.EventID,
			"status":       exec.Status,
			"results":      results,
		})
	}

	return RuleRun{Execution: exec, Results: results}
}

func (p *Processor) recordEvent(t event.Type, candidates, matched int) {
	if p.metrics != nil {
		p.metrics.WriteEventProcessed(string(t), candidates, matched)
	}
}
