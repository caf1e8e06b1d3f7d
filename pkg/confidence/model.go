// Package confidence implements the Bayesian confidence model that turns test
// evidence into a migration decision.
//
// The posterior over the semantic pass rate is a closed-form Beta-Bernoulli
// update. Decisions come from a monotonic threshold cascade over the posterior
// mean, reconciled with expected loss under the configured loss matrix.
package confidence

import (
	"math"
	"slices"
	"strings"

	"github.com/nightisyang/frankentui-sub001/pkg/builtin"
	"github.com/nightisyang/frankentui-sub001/pkg/document"
)

// SchemaVersion is the only confidence model schema version this package accepts.
const SchemaVersion = "confidence-model-v1"

const docName = "confidence model"

// weightTolerance bounds how far likelihood weights may sum away from 1.
const weightTolerance = 0.01

var schema = document.NewSchema(docName, "confidence_model.schema.json", builtin.MustSchema(builtin.ConfidenceModel))

// Model is an immutable, validated confidence model.
type Model struct {
	ModelID            string             `json:"model_id"`
	SchemaVersion      string             `json:"schema_version"`
	ModelVersion       string             `json:"model_version"`
	DecisionSpace      DecisionSpace      `json:"decision_space"`
	LossMatrix         LossMatrix         `json:"loss_matrix"`
	PriorConfig        PriorConfig        `json:"prior_config"`
	LikelihoodSources  []LikelihoodSource `json:"likelihood_sources"`
	DecisionBoundaries DecisionBoundaries `json:"decision_boundaries"`
	Calibration        Calibration        `json:"calibration"`
	FallbackTriggers   []FallbackTrigger  `json:"fallback_triggers"`
}

type DecisionSpace struct {
	Actions []string `json:"actions"`
	States  []string `json:"states"`
}

// LossMatrix holds the cost of each action given whether the migration is in
// fact correct.
type LossMatrix struct {
	AcceptCorrect            float64 `json:"accept_correct"`
	AcceptIncorrect          float64 `json:"accept_incorrect"`
	HoldCorrect              float64 `json:"hold_correct"`
	HoldIncorrect            float64 `json:"hold_incorrect"`
	RejectCorrect            float64 `json:"reject_correct"`
	RejectIncorrect          float64 `json:"reject_incorrect"`
	RollbackCost             float64 `json:"rollback_cost"`
	ConservativeFallbackCost float64 `json:"conservative_fallback_cost"`
}

type PriorConfig struct {
	SemanticPassRateAlpha            float64 `json:"semantic_pass_rate_alpha"`
	SemanticPassRateBeta             float64 `json:"semantic_pass_rate_beta"`
	PerformanceMeanPrior             float64 `json:"performance_mean_prior"`
	PerformanceVariancePrior         float64 `json:"performance_variance_prior"`
	UnsupportedFeaturePenaltyPerItem float64 `json:"unsupported_feature_penalty_per_item"`
}

type LikelihoodSource struct {
	SourceID    string  `json:"source_id"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// DecisionBoundaries are posterior-mean thresholds. Valid models keep them
// non-decreasing from RollbackTrigger up to AutoApproveThreshold.
type DecisionBoundaries struct {
	AutoApproveThreshold float64 `json:"auto_approve_threshold"`
	HumanReviewLower     float64 `json:"human_review_lower"`
	HumanReviewUpper     float64 `json:"human_review_upper"`
	RejectThreshold      float64 `json:"reject_threshold"`
	HardRejectThreshold  float64 `json:"hard_reject_threshold"`
	RollbackTrigger      float64 `json:"rollback_trigger"`
}

type Calibration struct {
	CredibleIntervalWidth     float64 `json:"credible_interval_width"`
	ConformalCoverageTarget   float64 `json:"conformal_coverage_target"`
	MinCalibrationSamples     uint32  `json:"min_calibration_samples"`
	RecalibrationTriggerDrift float64 `json:"recalibration_trigger_drift"`
}

// FallbackTrigger escalates a decision when Condition holds. Conditions are
// evaluated by package triggers.
type FallbackTrigger struct {
	TriggerID string        `json:"trigger_id"`
	Condition string        `json:"condition"`
	Action    TriggerAction `json:"action"`
}

// TriggerAction is the action a fallback trigger requests.
type TriggerAction string

const (
	ActionAccept               TriggerAction = "accept"
	ActionHold                 TriggerAction = "hold"
	ActionReject               TriggerAction = "reject"
	ActionRollback             TriggerAction = "rollback"
	ActionConservativeFallback TriggerAction = "conservative_fallback"
)

// TriggerActions lists the valid trigger actions.
func TriggerActions() []TriggerAction {
	return []TriggerAction{ActionAccept, ActionHold, ActionReject, ActionRollback, ActionConservativeFallback}
}

// requiredActions must appear in every decision space.
var requiredActions = []string{"accept", "hold", "reject", "rollback"}

// Parse decodes and validates a confidence model.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := schema.Decode(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Builtin returns a freshly parsed copy of the blessed confidence model.
func Builtin() (*Model, error) {
	data, err := builtin.Document(builtin.ConfidenceModel)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate runs the seven independent section checks. Which message surfaces
// for a document with several violations depends on check order; whether a
// document is valid does not.
func (m *Model) Validate() error {
	if m.SchemaVersion != SchemaVersion {
		return invalid("unsupported confidence model schema_version '%s' (expected '%s')", m.SchemaVersion, SchemaVersion)
	}
	if blank(m.ModelID) {
		return invalid("model_id must not be empty")
	}
	for _, check := range []func() error{
		m.validateDecisionSpace,
		m.validateLossMatrix,
		m.validatePrior,
		m.validateLikelihoodSources,
		m.validateBoundaries,
		m.validateCalibration,
		m.validateFallbackTriggers,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) validateDecisionSpace() error {
	ds := m.DecisionSpace
	if len(ds.Actions) == 0 {
		return invalid("decision_space.actions must not be empty")
	}
	if len(ds.States) == 0 {
		return invalid("decision_space.states must not be empty")
	}
	for _, a := range requiredActions {
		if !slices.Contains(ds.Actions, a) {
			return invalid("decision_space.actions must include '%s'", a)
		}
	}
	return nil
}

func (m *Model) validateLossMatrix() error {
	lm := m.LossMatrix
	if lm.AcceptCorrect < 0 {
		return invalid("loss_matrix.accept_correct must be >= 0")
	}
	if lm.AcceptIncorrect <= 0 {
		return invalid("loss_matrix.accept_incorrect must be > 0 (accepting wrong is costly)")
	}
	if lm.AcceptIncorrect <= lm.RejectCorrect {
		return invalid("loss_matrix: accept_incorrect must exceed reject_correct (wrong acceptance is worse than correct rejection)")
	}
	return nil
}

func (m *Model) validatePrior() error {
	pc := m.PriorConfig
	if pc.SemanticPassRateAlpha <= 0 || pc.SemanticPassRateBeta <= 0 {
		return invalid("prior_config: alpha and beta must be > 0 for valid Beta distribution")
	}
	if pc.PerformanceVariancePrior <= 0 {
		return invalid("prior_config.performance_variance_prior must be > 0")
	}
	if pc.UnsupportedFeaturePenaltyPerItem < 0 {
		return invalid("prior_config.unsupported_feature_penalty_per_item must be >= 0")
	}
	return nil
}

func (m *Model) validateLikelihoodSources() error {
	if len(m.LikelihoodSources) == 0 {
		return invalid("likelihood_sources must not be empty")
	}
	seen := map[string]struct{}{}
	total := 0.0
	for _, src := range m.LikelihoodSources {
		if blank(src.SourceID) {
			return invalid("likelihood source_id must not be empty")
		}
		if _, dup := seen[src.SourceID]; dup {
			return invalid("duplicate likelihood source_id '%s'", src.SourceID)
		}
		seen[src.SourceID] = struct{}{}
		if !unit(src.Weight) {
			return invalid("likelihood source '%s' weight must be in [0.0, 1.0]", src.SourceID)
		}
		total += src.Weight
	}
	if math.Abs(total-1) > weightTolerance {
		return invalid("likelihood source weights must sum to ~1.0, got %.4f", total)
	}
	return nil
}

func (m *Model) validateBoundaries() error {
	db := m.DecisionBoundaries
	ordered := []struct {
		name  string
		value float64
	}{
		{"rollback_trigger", db.RollbackTrigger},
		{"hard_reject_threshold", db.HardRejectThreshold},
		{"reject_threshold", db.RejectThreshold},
		{"human_review_lower", db.HumanReviewLower},
		{"human_review_upper", db.HumanReviewUpper},
		{"auto_approve_threshold", db.AutoApproveThreshold},
	}
	for _, b := range ordered {
		if !unit(b.value) {
			return invalid("decision_boundary '%s' must be in [0.0, 1.0], got %v", b.name, b.value)
		}
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].value > ordered[i].value {
			return invalid("%s must be <= %s", ordered[i-1].name, ordered[i].name)
		}
	}
	return nil
}

func (m *Model) validateCalibration() error {
	c := m.Calibration
	switch {
	case !unit(c.CredibleIntervalWidth):
		return invalid("calibration.credible_interval_width must be in [0.0, 1.0]")
	case !unit(c.ConformalCoverageTarget):
		return invalid("calibration.conformal_coverage_target must be in [0.0, 1.0]")
	case c.MinCalibrationSamples == 0:
		return invalid("calibration.min_calibration_samples must be > 0")
	case !(c.RecalibrationTriggerDrift > 0):
		return invalid("calibration.recalibration_trigger_drift must be > 0")
	}
	return nil
}

func (m *Model) validateFallbackTriggers() error {
	seen := map[string]struct{}{}
	valid := TriggerActions()
	for _, tr := range m.FallbackTriggers {
		if blank(tr.TriggerID) {
			return invalid("fallback trigger_id must not be empty")
		}
		if _, dup := seen[tr.TriggerID]; dup {
			return invalid("duplicate fallback trigger_id '%s'", tr.TriggerID)
		}
		seen[tr.TriggerID] = struct{}{}
		if blank(tr.Condition) {
			return invalid("fallback trigger '%s' condition must not be empty", tr.TriggerID)
		}
		if !slices.Contains(valid, tr.Action) {
			return invalid("fallback trigger '%s' action '%s' not in decision space", tr.TriggerID, tr.Action)
		}
	}
	return nil
}

// Digest returns the canonical digest of the model.
func (m *Model) Digest() (string, error) {
	return document.Digest(m)
}

// unit reports whether v lies in [0, 1]. NaN is never in range.
func unit(v float64) bool {
	return v >= 0 && v <= 1
}

func invalid(format string, args ...any) error {
	return document.Validationf(docName, format, args...)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
