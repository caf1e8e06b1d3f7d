//go:build property
// +build property

package confidence_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nightisyang/frankentui-sub001/pkg/confidence"
)

var decisionRank = map[confidence.Decision]int{
	confidence.AutoApprove:          0,
	confidence.HumanReview:          1,
	confidence.Reject:               2,
	confidence.HardReject:           3,
	confidence.Rollback:             4,
	confidence.ConservativeFallback: 5,
}

func builtinModel(t *testing.T) *confidence.Model {
	t.Helper()
	m, err := confidence.Builtin()
	if err != nil {
		t.Fatalf("builtin model: %v", err)
	}
	return m
}

// Property: more successes never lower the posterior mean; more failures never raise it.
func TestPosteriorMonotonicity(t *testing.T) {
	m := builtinModel(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("mean is non-decreasing in successes", prop.ForAll(
		func(s, f uint32) bool {
			return m.ComputePosterior(s+1, f).Mean >= m.ComputePosterior(s, f).Mean
		},
		gen.UInt32Range(0, 100000),
		gen.UInt32Range(0, 100000),
	))

	properties.Property("mean is non-increasing in failures", prop.ForAll(
		func(s, f uint32) bool {
			return m.ComputePosterior(s, f+1).Mean <= m.ComputePosterior(s, f).Mean
		},
		gen.UInt32Range(0, 100000),
		gen.UInt32Range(0, 100000),
	))

	properties.Property("credible interval brackets the mean inside [0,1]", prop.ForAll(
		func(s, f uint32) bool {
			p := m.ComputePosterior(s, f)
			return p.CredibleLower >= 0 && p.CredibleUpper <= 1 &&
				p.CredibleLower <= p.Mean && p.Mean <= p.CredibleUpper
		},
		gen.UInt32Range(0, 100000),
		gen.UInt32Range(0, 100000),
	))

	properties.TestingRun(t)
}

// Property: a higher posterior mean never yields a more conservative decision.
func TestBoundaryMonotonicity(t *testing.T) {
	m := builtinModel(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("boundary cascade is monotone", prop.ForAll(
		func(a, b float64) bool {
			if a > b {
				a, b = b, a
			}
			lo := m.Decide(confidence.Posterior{Mean: a})
			hi := m.Decide(confidence.Posterior{Mean: b})
			return decisionRank[lo] >= decisionRank[hi]
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("expected-loss decision is never more permissive than a hard boundary", prop.ForAll(
		func(s, f uint32) bool {
			p := m.ComputePosterior(s, f)
			boundary := m.Decide(p)
			got := m.ExpectedLossDecision(p, nil, nil).Decision
			switch boundary {
			case confidence.ConservativeFallback, confidence.Rollback, confidence.HardReject:
				return got == boundary
			case confidence.Reject:
				return got != confidence.AutoApprove
			}
			return true
		},
		gen.UInt32Range(0, 500),
		gen.UInt32Range(0, 500),
	))

	properties.TestingRun(t)
}
