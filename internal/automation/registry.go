package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used across the automation package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides rule management with caching and thread safety.
// It wraps a RuleRepository and serves the hot MatchRules path from memory.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the authoring operations below.
//
// All public methods are thread-safe.
type Registry struct {
	repo    RuleRepository
	cache   map[string]*Rule // Cached rules by ID, actions attached
	cacheMu sync.RWMutex     // Protects cache
	logger  Logger
}

// NewRegistry creates a new rule registry.
func NewRegistry(repo RuleRepository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Rule),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RefreshCache reloads all rules from the repository into the cache.
// This should be called on application startup.
//
// The cache is replaced only after the repository read succeeds, so a
// failed refresh leaves the previous cache in place.
//
// Returns:
//   - error: wrapped repository error, if any
func (r *Registry) RefreshCache(ctx context.Context) error {
	rules, err := r.repo.GetRuleList(ctx, RuleFilter{})
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Rule, len(rules))
	for i := range rules {
		r.cache[rules[i].ID] = rules[i].DeepCopy()
	}

	r.logger.Info("rule cache refreshed", "count", len(rules))
	return nil
}

// GetRule retrieves a rule by ID. The returned rule is a deep copy.
func (r *Registry) GetRule(_ context.Context, id string) (*Rule, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

// ListRules returns deep copies of the cached rules matching filter, in
// creation order.
func (r *Registry) ListRules(_ context.Context, filter RuleFilter) ([]Rule, error) {
	return r.collect(filter, false), nil
}

// MatchRules returns the enabled cached rules matching filter. It never
// touches the database.
func (r *Registry) MatchRules(_ context.Context, filter RuleFilter) ([]Rule, error) {
	return r.collect(filter, true), nil
}

func (r *Registry) collect(filter RuleFilter, enabledOnly bool) []Rule {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	rules := make([]Rule, 0)
	for _, rule := range r.cache {
		if enabledOnly && !rule.Enabled {
			continue
		}
		if filter.Matches(rule) {
			rules = append(rules, *rule.DeepCopy())
		}
	}
	sortRules(rules)
	return rules
}

// sortRules sorts rules by creation time then ID, matching the DB ordering.
func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}

// CreateRule fills defaults, validates, persists and caches a new rule.
func (r *Registry) CreateRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = GenerateID()
	}
	if rule.GroupType == "" {
		rule.GroupType = groupOf[rule.Type]
	}
	normalizeActions(rule.Actions, 0)

	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := r.repo.CreateRule(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule created",
		"id", rule.ID,
		"workspace_id", rule.WorkspaceID,
		"type", rule.Type,
		"actions", len(rule.Actions),
	)
	return nil
}

// UpdateRule validates and persists a rule's condition, filters and enabled
// flag. The cached actions are kept.
func (r *Registry) UpdateRule(ctx context.Context, rule *Rule) error {
	current, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return err
	}
	if rule.GroupType == "" {
		rule.GroupType = groupOf[rule.Type]
	}
	rule.WorkspaceID = current.WorkspaceID
	rule.CreatedBy = current.CreatedBy
	rule.CreatedAt = current.CreatedAt
	rule.Actions = current.Actions

	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := r.repo.UpdateRule(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule updated", "id", rule.ID, "enabled", rule.Enabled)
	return nil
}

// DeleteRule removes a rule from persistence and cache.
func (r *Registry) DeleteRule(ctx context.Context, id string) error {
	if err := r.repo.DeleteRule(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("rule deleted", "id", id)
	return nil
}

// AddActions validates and appends actions to an existing rule.
func (r *Registry) AddActions(ctx context.Context, ruleID string, actions []RuleAction) error {
	rule, err := r.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if len(rule.Actions)+len(actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrValidation, maxActions)
	}

	normalizeActions(actions, nextSortOrder(rule.Actions))
	for i := range actions {
		if err := ValidateAction(&actions[i]); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	if err := r.repo.BulkCreateActions(ctx, ruleID, actions); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[ruleID]; ok {
		cached.Actions = append(cached.Actions, actions...)
		sort.SliceStable(cached.Actions, func(i, j int) bool {
			return cached.Actions[i].SortOrder < cached.Actions[j].SortOrder
		})
	}
	r.cacheMu.Unlock()

	r.logger.Info("rule actions added", "rule_id", ruleID, "count", len(actions))
	return nil
}

// GetActions returns a rule's actions from the cache.
func (r *Registry) GetActions(ctx context.Context, ruleID string) ([]RuleAction, error) {
	rule, err := r.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	return rule.Actions, nil
}

// RuleCount returns the number of cached rules.
func (r *Registry) RuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// normalizeActions defaults action types and assigns sort orders starting at
// base to actions that have none.
func normalizeActions(actions []RuleAction, base int) {
	for i := range actions {
		if actions[i].Type == "" {
			actions[i].Type = ActionTypeCard
		}
		if actions[i].SortOrder == 0 {
			actions[i].SortOrder = base + i
		}
	}
}

func nextSortOrder(actions []RuleAction) int {
	next := 0
	for _, a := range actions {
		if a.SortOrder >= next {
			next = a.SortOrder + 1
		}
	}
	return next
}
