// Package certify composes the semantic contract, transformation policy,
// evidence manifest and confidence model into a single certification report
// for one migration run.
package certify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nightisyang/frankentui-sub001/pkg/confidence"
	"github.com/nightisyang/frankentui-sub001/pkg/contract"
	"github.com/nightisyang/frankentui-sub001/pkg/evidence"
	"github.com/nightisyang/frankentui-sub001/pkg/policy"
	"github.com/nightisyang/frankentui-sub001/pkg/triggers"
)

// Reason codes attached to failing checks.
const (
	ReasonContractGate      = "CONTRACT_GATE_FAILED"
	ReasonPolicyLinkage     = "POLICY_LINKAGE_MISMATCH"
	ReasonUnknownConstruct  = "UNKNOWN_CONSTRUCT"
	ReasonTriggerFired      = "FALLBACK_TRIGGER_FIRED"
	ReasonParserMissing     = "PARSER_NOT_RECORDED"
	ReasonParserVersion     = "PARSER_VERSION_MISMATCH"
	ReasonVerdictUnderstate = "VERDICT_UNDERSTATED"
)

// Inputs are the documents and run observations certification consumes.
type Inputs struct {
	Contract *contract.Contract
	Matrix   *policy.Matrix
	Manifest *evidence.Manifest
	Model    *confidence.Model

	// Constructs are the construct signatures the migrated source uses.
	Constructs []string
	// ParserConstraints maps parser name to a semver constraint the
	// recorded parser version must satisfy.
	ParserConstraints map[string]string
	// Drift is the observed calibration drift of the run.
	Drift float64
}

// Check is the outcome of a single certification check.
type Check struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ConstructFinding is the policy decision for one construct the run uses.
type ConstructFinding struct {
	ConstructSignature string               `json:"construct_signature"`
	Known              bool                 `json:"known"`
	HandlingClass      policy.HandlingClass `json:"handling_class,omitempty"`
	RiskLevel          policy.RiskLevel     `json:"risk_level,omitempty"`
}

// Report is the full certification outcome for one run.
type Report struct {
	ReportID              string                        `json:"report_id"`
	RunID                 string                        `json:"run_id"`
	ContractID            string                        `json:"contract_id"`
	PolicyID              string                        `json:"policy_id"`
	UnsupportedConstructs uint32                        `json:"unsupported_constructs"`
	EffectiveFailures     uint32                        `json:"effective_failures"`
	Constructs            []ConstructFinding            `json:"constructs"`
	Decision              confidence.ExpectedLossResult `json:"decision"`
	FiredTriggers         []triggers.Firing             `json:"fired_triggers"`
	ComputedVerdict       evidence.VerdictOutcome       `json:"computed_verdict"`
	DeclaredVerdict       evidence.VerdictOutcome       `json:"declared_verdict"`
	Checks                []Check                       `json:"checks"`
	Summary               string                        `json:"summary"`
	Passed                bool                          `json:"passed"`
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Pass {
			out = append(out, c)
		}
	}
	return out
}

func (r *Report) addCheck(c Check) {
	r.Checks = append(r.Checks, c)
}

func (r *Report) finish() {
	failed := len(r.Failed())
	r.Passed = failed == 0
	if r.Passed {
		r.Summary = fmt.Sprintf("PASS: %d/%d checks passed", len(r.Checks), len(r.Checks))
	} else {
		r.Summary = fmt.Sprintf("FAIL: %d/%d checks failed", failed, len(r.Checks))
	}
}

// Certifier runs certification. The zero value is not usable; use New.
type Certifier struct {
	logger *slog.Logger
	newID  func() string
}

// Option configures a Certifier.
type Option func(*Certifier)

// WithLogger sets the logger certification events are written to.
func WithLogger(l *slog.Logger) Option {
	return func(c *Certifier) { c.logger = l }
}

// WithIDGenerator overrides how report ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(c *Certifier) { c.newID = fn }
}

// New returns a Certifier.
func New(opts ...Option) *Certifier {
	c := &Certifier{
		logger: slog.Default(),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "certify")
	return c
}

// Certify runs certification with a default Certifier.
func Certify(ctx context.Context, in Inputs) (*Report, error) {
	return New().Certify(ctx, in)
}

// Certify evaluates one run. An error means certification could not be
// carried out; a failing run is reported through Report.Passed.
func (c *Certifier) Certify(ctx context.Context, in Inputs) (*Report, error) {
	if in.Contract == nil || in.Matrix == nil || in.Manifest == nil || in.Model == nil {
		return nil, errors.New("certify: contract, matrix, manifest and model are all required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("migcert/certify").Start(ctx, "certify.Certify")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", in.Manifest.RunID),
		attribute.String("policy_id", in.Matrix.PolicyID),
	)

	evaluator, err := triggers.Compile(in.Model)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("certify: %w", err)
	}

	m := in.Manifest
	report := &Report{
		ReportID:        c.newID(),
		RunID:           m.RunID,
		ContractID:      in.Contract.ContractID,
		PolicyID:        in.Matrix.PolicyID,
		DeclaredVerdict: m.CertificationVerdict.Verdict,
	}

	report.addCheck(contractGateCheck(in.Contract, m))
	report.addCheck(policyLinkageCheck(in.Matrix, m))

	findings, unsupported, constructCheck := classifyConstructs(in.Matrix, in.Constructs)
	report.Constructs = findings
	report.UnsupportedConstructs = unsupported
	report.addCheck(constructCheck)

	verdict := m.CertificationVerdict
	penalty := math.Ceil(float64(unsupported) * in.Model.PriorConfig.UnsupportedFeaturePenaltyPerItem)
	report.EffectiveFailures = saturatingAdd(verdict.TestFailCount, penalty)

	posterior := in.Model.ComputePosterior(verdict.TestPassCount, report.EffectiveFailures)
	runID, policyID := m.RunID, in.Matrix.PolicyID
	report.Decision = in.Model.ExpectedLossDecision(posterior, &runID, &policyID)
	computed := VerdictFor(report.Decision.Decision)

	fired, err := evaluator.Evaluate(triggers.Observation{
		Posterior:             posterior,
		Boundary:              in.Model.Decide(posterior),
		Successes:             verdict.TestPassCount,
		Failures:              report.EffectiveFailures,
		Skipped:               verdict.TestSkipCount,
		UnsupportedConstructs: unsupported,
		CalibrationSamples:    in.Model.Calibration.MinCalibrationSamples,
		Drift:                 in.Drift,
		HashChainIntact:       m.HashChainIntact(),
		DivergenceDetected:    m.DeterminismAttestation.DivergenceDetected,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("certify: %w", err)
	}
	report.FiredTriggers = fired
	base := computed
	for _, f := range fired {
		computed = escalate(computed, EscalationFor(f.Action))
		c.logger.WarnContext(ctx, "fallback trigger fired",
			"run_id", m.RunID,
			"trigger_id", f.TriggerID,
			"action", f.Action,
		)
	}
	report.ComputedVerdict = computed
	report.addCheck(triggerCheck(fired, base, report.DeclaredVerdict))

	for _, pc := range parserChecks(m.SourceFingerprint.ParserVersions, in.ParserConstraints) {
		report.addCheck(pc)
	}
	report.addCheck(verdictCheck(report.DeclaredVerdict, computed))

	report.finish()
	span.SetAttributes(
		attribute.String("decision", report.Decision.Decision.String()),
		attribute.String("computed_verdict", string(computed)),
		attribute.Bool("passed", report.Passed),
	)
	c.logger.InfoContext(ctx, "certification complete",
		"run_id", m.RunID,
		"report_id", report.ReportID,
		"decision", report.Decision.Decision,
		"computed_verdict", computed,
		"declared_verdict", report.DeclaredVerdict,
		"summary", report.Summary,
	)
	return report, nil
}

func contractGateCheck(c *contract.Contract, m *evidence.Manifest) Check {
	gate, err := RuntimeContractGate(c, m)
	if err != nil {
		return Check{Name: "contract_gate", Detail: err.Error(), Reason: ReasonContractGate}
	}
	return Check{
		Name:   "contract_gate",
		Pass:   true,
		Detail: fmt.Sprintf("%d validators satisfied", len(gate.ValidatorResults)),
	}
}

func policyLinkageCheck(p *policy.Matrix, m *evidence.Manifest) Check {
	var mismatched []string
	for _, s := range m.Stages {
		if s.PolicyID != p.PolicyID {
			mismatched = append(mismatched, fmt.Sprintf("%s=%s", s.StageID, s.PolicyID))
		}
	}
	if len(mismatched) > 0 {
		return Check{
			Name:   "policy_linkage",
			Detail: fmt.Sprintf("stages not linked to policy '%s': %s", p.PolicyID, strings.Join(mismatched, ", ")),
			Reason: ReasonPolicyLinkage,
		}
	}
	return Check{Name: "policy_linkage", Pass: true, Detail: fmt.Sprintf("all stages reference '%s'", p.PolicyID)}
}

// classifyConstructs looks up every distinct construct in the policy matrix.
func classifyConstructs(p *policy.Matrix, constructs []string) ([]ConstructFinding, uint32, Check) {
	sigs := slices.Clone(constructs)
	slices.Sort(sigs)
	sigs = slices.Compact(sigs)

	findings := make([]ConstructFinding, 0, len(sigs))
	var unknown []string
	var unsupported uint32
	for _, sig := range sigs {
		cell, ok := p.PolicyForConstruct(sig)
		if !ok {
			unknown = append(unknown, sig)
			findings = append(findings, ConstructFinding{ConstructSignature: sig})
			continue
		}
		if cell.HandlingClass == policy.HandlingUnsupported {
			unsupported++
		}
		findings = append(findings, ConstructFinding{
			ConstructSignature: sig,
			Known:              true,
			HandlingClass:      cell.HandlingClass,
			RiskLevel:          cell.RiskLevel,
		})
	}

	check := Check{Name: "constructs", Pass: true}
	if len(unknown) > 0 {
		check.Pass = false
		check.Reason = ReasonUnknownConstruct
		check.Detail = "constructs missing from policy matrix: " + strings.Join(unknown, ", ")
	} else {
		check.Detail = fmt.Sprintf("%d constructs classified, %d unsupported", len(sigs), unsupported)
	}
	return findings, unsupported, check
}

// triggerCheck fails only when a fired trigger raised the verdict above both
// the decision's own verdict and the declared one. Firings that escalate
// nothing are listed in Detail.
func triggerCheck(fired []triggers.Firing, base, declared evidence.VerdictOutcome) Check {
	if len(fired) == 0 {
		return Check{Name: "fallback_triggers", Pass: true, Detail: "no fallback triggers fired"}
	}
	var ids, escalating []string
	for _, f := range fired {
		id := fmt.Sprintf("%s->%s", f.TriggerID, f.Action)
		ids = append(ids, id)
		to := EscalationFor(f.Action)
		if to.Severity() > base.Severity() && to.Severity() > declared.Severity() {
			escalating = append(escalating, id)
		}
	}
	if len(escalating) > 0 {
		return Check{
			Name:   "fallback_triggers",
			Detail: fmt.Sprintf("escalated above declared '%s': %s", declared, strings.Join(escalating, ", ")),
			Reason: ReasonTriggerFired,
		}
	}
	return Check{
		Name:   "fallback_triggers",
		Pass:   true,
		Detail: "fired without escalation: " + strings.Join(ids, ", "),
	}
}

func verdictCheck(declared, computed evidence.VerdictOutcome) Check {
	if declared.Severity() < computed.Severity() {
		return Check{
			Name:   "declared_verdict",
			Detail: fmt.Sprintf("manifest declares '%s' but evidence supports at most '%s'", declared, computed),
			Reason: ReasonVerdictUnderstate,
		}
	}
	return Check{
		Name:   "declared_verdict",
		Pass:   true,
		Detail: fmt.Sprintf("declared '%s', computed '%s'", declared, computed),
	}
}

func saturatingAdd(base uint32, extra float64) uint32 {
	sum := float64(base) + extra
	if sum >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}
