package alerting

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/pawwatch/internal/detector"
)

// findingEnv is the variable set visible to custom expressions, e.g.
// `type in ["frequency"] && timeframe contains "14"`.
type findingEnv struct {
	Type          string  `expr:"type"`
	Severity      string  `expr:"severity"`
	Confidence    float64 `expr:"confidence"`
	IsAnomalous   bool    `expr:"is_anomalous"`
	CurrentValue  float64 `expr:"current_value"`
	ExpectedValue float64 `expr:"expected_value"`
	Threshold     float64 `expr:"threshold"`
	Timeframe     string  `expr:"timeframe"`
	// Deviation is |current - expected| / expected, or 0 without a baseline.
	Deviation float64 `expr:"deviation"`
}

func newFindingEnv(f detector.Finding) findingEnv {
	td := f.TriggerData
	env := findingEnv{
		Type:          string(f.Type),
		Severity:      string(f.Severity),
		Confidence:    f.Confidence,
		IsAnomalous:   f.IsAnomalous,
		CurrentValue:  td.CurrentValue,
		ExpectedValue: td.ExpectedValue,
		Threshold:     td.Threshold,
		Timeframe:     td.Timeframe,
	}
	if td.ExpectedValue != 0 {
		env.Deviation = math.Abs(td.CurrentValue-td.ExpectedValue) / math.Abs(td.ExpectedValue)
	}
	return env
}

// ExprMatcher is a compiled boolean expression over a finding.
type ExprMatcher struct {
	source  string
	program *vm.Program
}

// NewExprMatcher compiles expression. Unknown variables and non-boolean
// results are compile errors.
func NewExprMatcher(expression string) (*ExprMatcher, error) {
	program, err := expr.Compile(expression, expr.Env(findingEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	return &ExprMatcher{source: expression, program: program}, nil
}

// Match runs the expression against f.
func (m *ExprMatcher) Match(f detector.Finding) (bool, error) {
	out, err := expr.Run(m.program, newFindingEnv(f))
	if err != nil {
		return false, fmt.Errorf("evaluate expression %q: %w", m.source, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", m.source, out)
	}
	return matched, nil
}

// Expression returns the source text.
func (m *ExprMatcher) Expression() string {
	return m.source
}
