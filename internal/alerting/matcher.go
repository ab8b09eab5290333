package alerting

import (
	"fmt"
	"sync"

	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Matcher applies a rule's trigger filter and custom expression to a finding.
// Compiled expressions are cached by source text.
type Matcher struct {
	mu       sync.RWMutex
	compiled map[string]*ExprMatcher
}

// NewMatcher creates a new Matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		compiled: make(map[string]*ExprMatcher),
	}
}

// Match reports whether f satisfies the rule. A rule without an expression
// matches on Matches alone.
func (m *Matcher) Match(rule *models.AlertRule, f detector.Finding) (bool, error) {
	if !Matches(rule, f) {
		return false, nil
	}
	if rule.CustomConditions == nil || rule.CustomConditions.Expression == "" {
		return true, nil
	}

	em, err := m.expression(rule.CustomConditions.Expression)
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", rule.Name, err)
	}
	return em.Match(f)
}

// ValidateRule validates the rule and compiles its expression, if any.
func (m *Matcher) ValidateRule(rule *models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.CustomConditions == nil || rule.CustomConditions.Expression == "" {
		return nil
	}
	if _, err := m.expression(rule.CustomConditions.Expression); err != nil {
		return fmt.Errorf("invalid expression for rule %q: %w", rule.Name, err)
	}
	return nil
}

func (m *Matcher) expression(src string) (*ExprMatcher, error) {
	m.mu.RLock()
	em, ok := m.compiled[src]
	m.mu.RUnlock()
	if ok {
		return em, nil
	}

	em, err := NewExprMatcher(src)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.compiled[src] = em
	m.mu.Unlock()
	return em, nil
}
