// Package influxdb records automation metrics in InfluxDB v2.
//
// Each processed event and each rule run becomes one point, written through
// the non-blocking batched write API:
//
//	automation_events     tags: event_type                 fields: candidates, matched
//	automation_rule_runs  tags: workspace_id, rule_type,   fields: actions_total, actions_failed,
//	                            status, rule_id                    duration_ms
//
// Writes on a disconnected client are dropped. Async write errors are
// delivered to the SetOnError callback.
package influxdb
