// Package automation provides the rule engine for Boardflow Core.
//
// Rules belong to a workspace. Each rule has a trigger (a typed condition
// selected by group_type and type), optional filters that must all match,
// and actions that reposition the event's card.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│               Processor (processor.go)                  │
//	│  ┌──────────────┐    ┌──────────────────┐              │
//	│  │   Registry   │───▶│  RuleRepository  │              │
//	│  │(registry.go) │    │ (repository.go)  │              │
//	│  └──────────────┘    └──────────────────┘              │
//	│        │                                               │
//	│        ▼                                               │
//	│  ┌───────────────────────────────────────────────┐    │
//	│  │  Pipeline per event                            │    │
//	│  │  1. Event type → candidate rule types          │    │
//	│  │  2. Cached rules for {workspace, types}        │    │
//	│  │  3. Matcher: trigger, then every filter        │    │
//	│  │  4. Executor: actions on a bounded pool        │    │
//	│  │  5. Log execution, write metrics, broadcast    │    │
//	│  └───────────────────────────────────────────────┘    │
//	└────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Rule: trigger condition, filters and actions
//   - Trigger: decoded rule condition for one rule type
//   - Evaluator: one filter kind, created by CreateEvaluator
//   - Matcher: fail-closed trigger and filter evaluation
//   - Executor: runs move actions through the board repository
//   - Processor: wires the above behind Process(ctx, event)
//
// # Failure Handling
//
// Matching fails closed: an unknown filter type, an undecodable condition,
// a repository error or a panicking evaluator all make the rule not match.
// Action failures are reported per action and never stop other actions or
// other rules. Nothing is returned to the event loop.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db)
//	registry := automation.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	matcher := automation.NewMatcher(automation.Deps{Labels: boards, Members: boards})
//	executor := automation.NewExecutor(boards, boards, 16, 30*time.Second)
//	processor := automation.NewProcessor(registry, matcher, executor)
//	processor.SetRecorder(repo)
//
//	processor.Process(ctx, ev)
package automation
