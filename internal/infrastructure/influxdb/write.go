package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementEvents   = "automation_events"
	measurementRuleRuns = "automation_rule_runs"
)

// WriteEventProcessed records how many rules were considered and matched
// for one domain event.
func (c *Client) WriteEventProcessed(eventType string, candidates, matched int) {
	c.write(eventPoint(eventType, candidates, matched, time.Now()))
}

// WriteRuleExecution records the outcome of one rule run.
func (c *Client) WriteRuleExecution(workspaceID, ruleID, ruleType, status string, actionsTotal, actionsFailed int, duration time.Duration) {
	c.write(ruleRunPoint(workspaceID, ruleID, ruleType, status, actionsTotal, actionsFailed, duration, time.Now()))
}

func eventPoint(eventType string, candidates, matched int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementEvents,
		map[string]string{"event_type": eventType},
		map[string]any{
			"candidates": candidates,
			"matched":    matched,
		},
		ts,
	)
}

// ruleRunPoint keeps rule_id as a tag: rule counts per workspace are small.
func ruleRunPoint(workspaceID, ruleID, ruleType, status string, actionsTotal, actionsFailed int, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementRuleRuns,
		map[string]string{
			"workspace_id": workspaceID,
			"rule_id":      ruleID,
			"rule_type":    ruleType,
			"status":       status,
		},
		map[string]any{
			"actions_total":  actionsTotal,
			"actions_failed": actionsFailed,
			"duration_ms":    duration.Milliseconds(),
		},
		ts,
	)
}
