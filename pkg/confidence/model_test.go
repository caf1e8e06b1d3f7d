package confidence

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightisyang/frankentui-sub001/pkg/document"
)

func mustBuiltin(t *testing.T) *Model {
	t.Helper()
	m, err := Builtin()
	require.NoError(t, err)
	return m
}

func TestBuiltin_Valid(t *testing.T) {
	m := mustBuiltin(t)
	assert.Equal(t, SchemaVersion, m.SchemaVersion)
	db := m.DecisionBoundaries
	assert.LessOrEqual(t, db.RollbackTrigger, db.HardRejectThreshold)
	assert.LessOrEqual(t, db.HardRejectThreshold, db.RejectThreshold)
	assert.LessOrEqual(t, db.RejectThreshold, db.HumanReviewLower)
	assert.LessOrEqual(t, db.HumanReviewLower, db.HumanReviewUpper)
	assert.LessOrEqual(t, db.HumanReviewUpper, db.AutoApproveThreshold)
}

func TestRoundTrip(t *testing.T) {
	m := mustBuiltin(t)
	data, err := json.Marshal(m)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, m, again)
}

func TestLikelihoodWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		wantErr string
	}{
		{"two halves", []float64{0.5, 0.5}, ""},
		{"within tolerance", []float64{0.333, 0.333, 0.333}, ""},
		{"sum too large", []float64{0.5, 0.5, 0.5}, "sum to"},
		{"sum too small", []float64{0.2, 0.2}, "sum to ~1.0, got 0.4000"},
		{"weight out of range", []float64{1.5, -0.5}, "weight must be in [0.0, 1.0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustBuiltin(t)
			m.LikelihoodSources = nil
			for i, w := range tt.weights {
				m.LikelihoodSources = append(m.LikelihoodSources, LikelihoodSource{
					SourceID: string(rune('a' + i)),
					Weight:   w,
				})
			}
			err := m.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Model)
		wantMsg string
	}{
		{"schema version", func(m *Model) { m.SchemaVersion = "confidence-model-v2" }, "unsupported confidence model schema_version"},
		{"model id", func(m *Model) { m.ModelID = "" }, "model_id must not be empty"},
		{"no actions", func(m *Model) { m.DecisionSpace.Actions = nil }, "decision_space.actions must not be empty"},
		{"no states", func(m *Model) { m.DecisionSpace.States = nil }, "decision_space.states must not be empty"},
		{"missing rollback action", func(m *Model) {
			m.DecisionSpace.Actions = []string{"accept", "hold", "reject"}
		}, "decision_space.actions must include 'rollback'"},
		{"negative accept cost", func(m *Model) { m.LossMatrix.AcceptCorrect = -1 }, "loss_matrix.accept_correct must be >= 0"},
		{"free wrong accept", func(m *Model) { m.LossMatrix.AcceptIncorrect = 0 }, "loss_matrix.accept_incorrect must be > 0"},
		{"cheap wrong accept", func(m *Model) {
			m.LossMatrix.AcceptIncorrect = 2
			m.LossMatrix.RejectCorrect = 2
		}, "accept_incorrect must exceed reject_correct"},
		{"alpha", func(m *Model) { m.PriorConfig.SemanticPassRateAlpha = 0 }, "alpha and beta must be > 0"},
		{"beta", func(m *Model) { m.PriorConfig.SemanticPassRateBeta = -1 }, "alpha and beta must be > 0"},
		{"variance", func(m *Model) { m.PriorConfig.PerformanceVariancePrior = 0 }, "performance_variance_prior must be > 0"},
		{"penalty", func(m *Model) { m.PriorConfig.UnsupportedFeaturePenaltyPerItem = -0.1 }, "unsupported_feature_penalty_per_item must be >= 0"},
		{"no sources", func(m *Model) { m.LikelihoodSources = nil }, "likelihood_sources must not be empty"},
		{"source id", func(m *Model) { m.LikelihoodSources[0].SourceID = "" }, "likelihood source_id must not be empty"},
		{"duplicate source", func(m *Model) { m.LikelihoodSources[1].SourceID = m.LikelihoodSources[0].SourceID }, "duplicate likelihood source_id 'test_results'"},
		{"boundary range", func(m *Model) { m.DecisionBoundaries.AutoApproveThreshold = 1.2 }, "decision_boundary 'auto_approve_threshold' must be in [0.0, 1.0], got 1.2"},
		{"auto below rollback", func(m *Model) {
			m.DecisionBoundaries.AutoApproveThreshold = 0.1
			m.DecisionBoundaries.RollbackTrigger = 0.2
		}, "must be <="},
		{"rollback above hard reject", func(m *Model) { m.DecisionBoundaries.RollbackTrigger = 0.4 }, "rollback_trigger must be <= hard_reject_threshold"},
		{"review band inverted", func(m *Model) { m.DecisionBoundaries.HumanReviewLower = 0.95 }, "human_review_lower must be <= human_review_upper"},
		{"interval width", func(m *Model) { m.Calibration.CredibleIntervalWidth = 1.1 }, "calibration.credible_interval_width must be in [0.0, 1.0]"},
		{"coverage target", func(m *Model) { m.Calibration.ConformalCoverageTarget = -0.1 }, "calibration.conformal_coverage_target must be in [0.0, 1.0]"},
		{"samples", func(m *Model) { m.Calibration.MinCalibrationSamples = 0 }, "calibration.min_calibration_samples must be > 0"},
		{"drift", func(m *Model) { m.Calibration.RecalibrationTriggerDrift = 0 }, "calibration.recalibration_trigger_drift must be > 0"},
		{"trigger id", func(m *Model) { m.FallbackTriggers[0].TriggerID = "" }, "fallback trigger_id must not be empty"},
		{"duplicate trigger", func(m *Model) { m.FallbackTriggers[1].TriggerID = m.FallbackTriggers[0].TriggerID }, "duplicate fallback trigger_id 'hash-chain-broken'"},
		{"trigger condition", func(m *Model) { m.FallbackTriggers[0].Condition = " " }, "fallback trigger 'hash-chain-broken' condition must not be empty"},
		{"trigger action", func(m *Model) { m.FallbackTriggers[0].Action = "escalate" }, "fallback trigger 'hash-chain-broken' action 'escalate' not in decision space"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustBuiltin(t)
			tt.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.True(t, document.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_NoFallbackTriggersIsValid(t *testing.T) {
	m := mustBuiltin(t)
	m.FallbackTriggers = nil
	require.NoError(t, m.Validate())
}
