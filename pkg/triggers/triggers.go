// Package triggers evaluates confidence-model fallback triggers. Each trigger
// condition is a CEL boolean expression over the observations of one
// certification run.
package triggers

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/nightisyang/frankentui-sub001/pkg/confidence"
)

// Observation is what a run exposes to trigger conditions.
type Observation struct {
	Posterior             confidence.Posterior
	Boundary              confidence.Decision
	Successes             uint32
	Failures              uint32
	Skipped               uint32
	UnsupportedConstructs uint32
	CalibrationSamples    uint32
	Drift                 float64
	HashChainIntact       bool
	DivergenceDetected    bool
}

func (o Observation) activation() map[string]any {
	return map[string]any{
		"posterior_mean":         o.Posterior.Mean,
		"credible_lower":         o.Posterior.CredibleLower,
		"credible_upper":         o.Posterior.CredibleUpper,
		"successes":              int64(o.Successes),
		"failures":               int64(o.Failures),
		"skipped":                int64(o.Skipped),
		"unsupported_constructs": int64(o.UnsupportedConstructs),
		"calibration_samples":    int64(o.CalibrationSamples),
		"drift":                  o.Drift,
		"hash_chain_intact":      o.HashChainIntact,
		"divergence_detected":    o.DivergenceDetected,
		"boundary":               string(o.Boundary),
	}
}

// Firing records a trigger whose condition held.
type Firing struct {
	TriggerID string                   `json:"trigger_id"`
	Condition string                   `json:"condition"`
	Action    confidence.TriggerAction `json:"action"`
}

type compiled struct {
	trigger confidence.FallbackTrigger
	program cel.Program
}

// Evaluator holds compiled trigger programs. It is immutable once built and
// safe for concurrent use.
type Evaluator struct {
	programs []compiled
}

// NewEnv returns the CEL environment trigger conditions are checked against.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("posterior_mean", cel.DoubleType),
		cel.Variable("credible_lower", cel.DoubleType),
		cel.Variable("credible_upper", cel.DoubleType),
		cel.Variable("successes", cel.IntType),
		cel.Variable("failures", cel.IntType),
		cel.Variable("skipped", cel.IntType),
		cel.Variable("unsupported_constructs", cel.IntType),
		cel.Variable("calibration_samples", cel.IntType),
		cel.Variable("drift", cel.DoubleType),
		cel.Variable("hash_chain_intact", cel.BoolType),
		cel.Variable("divergence_detected", cel.BoolType),
		cel.Variable("boundary", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Compile type-checks every trigger condition of m. A condition that does not
// compile, or does not produce a bool, fails the whole model.
func Compile(m *confidence.Model) (*Evaluator, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}
	ev := &Evaluator{programs: make([]compiled, 0, len(m.FallbackTriggers))}
	for _, tr := range m.FallbackTriggers {
		ast, issues := env.Compile(tr.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("trigger %q: compile: %w", tr.TriggerID, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("trigger %q: condition must be bool, got %s", tr.TriggerID, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: program: %w", tr.TriggerID, err)
		}
		ev.programs = append(ev.programs, compiled{trigger: tr, program: prg})
	}
	return ev, nil
}

// Len is the number of compiled triggers.
func (e *Evaluator) Len() int { return len(e.programs) }

// Evaluate returns the triggers whose conditions hold, in declared order.
func (e *Evaluator) Evaluate(obs Observation) ([]Firing, error) {
	input := obs.activation()
	fired := []Firing{}
	for _, c := range e.programs {
		out, _, err := c.program.Eval(input)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: eval: %w", c.trigger.TriggerID, err)
		}
		hit, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("trigger %q: result not bool", c.trigger.TriggerID)
		}
		if hit {
			fired = append(fired, Firing{
				TriggerID: c.trigger.TriggerID,
				Condition: c.trigger.Condition,
				Action:    c.trigger.Action,
			})
		}
	}
	return fired, nil
}
