// Package provenance implements the licensing and provenance contract: which
// license classes a migrated codebase may carry, how the per-stage provenance
// hash chain is recorded, and which action a licensing finding forces.
package provenance

import (
	"slices"
	"strings"

	"github.com/nightisyang/frankentui-sub001/pkg/builtin"
	"github.com/nightisyang/frankentui-sub001/pkg/document"
)

// SchemaVersion is the only licensing provenance schema version this package accepts.
const SchemaVersion = "licensing-provenance-v1"

const docName = "licensing provenance"

var schema = document.NewSchema(docName, "licensing_provenance.schema.json", builtin.MustSchema(builtin.LicensingProvenance))

// Contract is an immutable, validated licensing and provenance contract.
type Contract struct {
	ContractID            string              `json:"contract_id"`
	SchemaVersion         string              `json:"schema_version"`
	ContractVersion       string              `json:"contract_version"`
	LicensingPolicy       LicensingPolicy     `json:"licensing_policy"`
	ProvenanceChainPolicy ChainPolicy         `json:"provenance_chain_policy"`
	IPArtifactStatuses    []string            `json:"ip_artifact_statuses"`
	FailSafeDefaults      FailSafeDefaults    `json:"fail_safe_defaults"`
	AttributionTemplate   AttributionTemplate `json:"attribution_template"`
	RiskFlags             []RiskFlag          `json:"risk_flags"`
}

type LicensingPolicy struct {
	AllowedLicenseClasses   []string       `json:"allowed_license_classes"`
	BlockedLicenseClasses   []string       `json:"blocked_license_classes"`
	CopyleftBoundaryAction  string         `json:"copyleft_boundary_action"`
	MissingLicenseAction    string         `json:"missing_license_action"`
	AmbiguousLicenseAction  string         `json:"ambiguous_license_action"`
	LicenseClassDefinitions []LicenseClass `json:"license_class_definitions"`
}

type LicenseClass struct {
	ClassID     string `json:"class_id"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
}

// ChainPolicy says which pipeline stages must leave a provenance record and
// whether consecutive records must link by hash.
type ChainPolicy struct {
	RequiredStages      []string `json:"required_stages"`
	HashAlgorithm       string   `json:"hash_algorithm"`
	ChainMustBeUnbroken bool     `json:"chain_must_be_unbroken"`
	EachStageMustRecord []string `json:"each_stage_must_record"`
	AttributionRequired bool     `json:"attribution_required"`
}

// FailSafeDefaults map each licensing finding to accept, hold or reject.
type FailSafeDefaults struct {
	OnMissingProvenance  string `json:"on_missing_provenance"`
	OnBrokenChain        string `json:"on_broken_chain"`
	OnBlockedLicense     string `json:"on_blocked_license"`
	OnUnknownLicense     string `json:"on_unknown_license"`
	OnExpiredAttribution string `json:"on_expired_attribution"`
	OnNeedsCounsel       string `json:"on_needs_counsel"`
}

type AttributionTemplate struct {
	Format         string   `json:"format"`
	RequiredFields []string `json:"required_fields"`
	OptionalFields []string `json:"optional_fields"`
}

type RiskFlag struct {
	FlagID      string `json:"flag_id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// ArtifactStatus is the licensing standing of one third-party artifact.
type ArtifactStatus string

const (
	StatusClear        ArtifactStatus = "clear"
	StatusExpired      ArtifactStatus = "expired"
	StatusUnknown      ArtifactStatus = "unknown"
	StatusNeedsCounsel ArtifactStatus = "needs_counsel"
	StatusBlocked      ArtifactStatus = "blocked"
)

// Artifact is one dependency or vendored asset assessed for licensing.
type Artifact struct {
	ArtifactID        string         `json:"artifact_id"`
	LicenseSPDX       *string        `json:"license_spdx"`
	LicenseClass      string         `json:"license_class"`
	Status            ArtifactStatus `json:"status"`
	RiskFlags         []string       `json:"risk_flags"`
	DesignAroundNotes *string        `json:"design_around_notes"`
}

// ChainRecord is the provenance left by one pipeline stage.
type ChainRecord struct {
	StageID     string `json:"stage_id"`
	InputHash   string `json:"input_hash"`
	OutputHash  string `json:"output_hash"`
	ToolVersion string `json:"tool_version"`
	Timestamp   string `json:"timestamp"`
}

// Action is what a licensing finding does to the migration.
type Action string

const (
	ActionAccept Action = "accept"
	ActionHold   Action = "hold"
	ActionReject Action = "reject"
)

// Report summarises a licensing assessment of one run.
type Report struct {
	RunID               string         `json:"run_id"`
	Chain               []ChainRecord  `json:"chain"`
	IPArtifacts         []Artifact     `json:"ip_artifacts"`
	AttributionNotice   string         `json:"attribution_notice"`
	UnresolvedRiskFlags []string       `json:"unresolved_risk_flags"`
	OverallStatus       ArtifactStatus `json:"overall_status"`
}

var (
	severities           = []string{"low", "medium", "high", "critical"}
	policyActions        = []string{"fail_safe", "reject", "hold", "needs_counsel", "warn"}
	failSafeActions      = []string{"accept", "hold", "reject"}
	requiredRecordFields = []string{"input_hash", "output_hash", "tool_version", "timestamp"}
	requiredStatuses     = []string{"clear", "unknown", "blocked"}
)

// Parse decodes and validates a licensing provenance contract.
func Parse(data []byte) (*Contract, error) {
	var c Contract
	if err := schema.Decode(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Builtin returns a freshly parsed copy of the blessed licensing provenance contract.
func Builtin() (*Contract, error) {
	data, err := builtin.Document(builtin.LicensingProvenance)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks the contract section by section and returns the first violation.
func (c *Contract) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return invalid("unsupported licensing provenance schema_version '%s' (expected '%s')", c.SchemaVersion, SchemaVersion)
	}
	if blank(c.ContractID) {
		return invalid("contract_id must not be empty")
	}
	for _, check := range []func() error{
		c.validateLicensingPolicy,
		c.validateChainPolicy,
		c.validateStatuses,
		c.validateFailSafeDefaults,
		c.validateAttributionTemplate,
		c.validateRiskFlags,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Contract) validateLicensingPolicy() error {
	lp := c.LicensingPolicy
	switch {
	case len(lp.AllowedLicenseClasses) == 0:
		return invalid("licensing_policy.allowed_license_classes must not be empty")
	case len(lp.BlockedLicenseClasses) == 0:
		return invalid("licensing_policy.blocked_license_classes must not be empty")
	case len(lp.LicenseClassDefinitions) == 0:
		return invalid("licensing_policy.license_class_definitions must not be empty")
	}

	defined := map[string]struct{}{}
	for _, d := range lp.LicenseClassDefinitions {
		defined[d.ClassID] = struct{}{}
	}
	for _, class := range slices.Concat(lp.AllowedLicenseClasses, lp.BlockedLicenseClasses) {
		if _, ok := defined[class]; !ok {
			return invalid("license class '%s' referenced but not defined in license_class_definitions", class)
		}
	}

	var overlap []string
	for _, class := range lp.AllowedLicenseClasses {
		if slices.Contains(lp.BlockedLicenseClasses, class) && !slices.Contains(overlap, class) {
			overlap = append(overlap, class)
		}
	}
	if len(overlap) > 0 {
		slices.Sort(overlap)
		return invalid("license classes cannot be both allowed and blocked: %s", strings.Join(overlap, ", "))
	}

	seen := map[string]struct{}{}
	for _, d := range lp.LicenseClassDefinitions {
		if blank(d.ClassID) {
			return invalid("license class_id must not be empty")
		}
		if _, dup := seen[d.ClassID]; dup {
			return invalid("duplicate license class_id '%s'", d.ClassID)
		}
		seen[d.ClassID] = struct{}{}
		if blank(d.Description) {
			return invalid("license class '%s' has empty description", d.ClassID)
		}
		if !slices.Contains(severities, d.RiskLevel) {
			return invalid("license class '%s' has invalid risk_level '%s' (expected: low, medium, high, critical)", d.ClassID, d.RiskLevel)
		}
	}

	for _, a := range []struct{ name, value string }{
		{"copyleft_boundary_action", lp.CopyleftBoundaryAction},
		{"missing_license_action", lp.MissingLicenseAction},
		{"ambiguous_license_action", lp.AmbiguousLicenseAction},
	} {
		if !slices.Contains(policyActions, a.value) {
			return invalid("licensing_policy.%s '%s' not a valid action", a.name, a.value)
		}
	}
	return nil
}

func (c *Contract) validateChainPolicy() error {
	p := c.ProvenanceChainPolicy
	switch {
	case len(p.RequiredStages) == 0:
		return invalid("provenance_chain_policy.required_stages must not be empty")
	case blank(p.HashAlgorithm):
		return invalid("provenance_chain_policy.hash_algorithm must not be empty")
	case len(p.EachStageMustRecord) == 0:
		return invalid("provenance_chain_policy.each_stage_must_record must not be empty")
	}
	for _, f := range requiredRecordFields {
		if !slices.Contains(p.EachStageMustRecord, f) {
			return invalid("provenance_chain_policy.each_stage_must_record missing required field '%s'", f)
		}
	}
	return nil
}

func (c *Contract) validateStatuses() error {
	if len(c.IPArtifactStatuses) == 0 {
		return invalid("ip_artifact_statuses must not be empty")
	}
	for _, s := range requiredStatuses {
		if !slices.Contains(c.IPArtifactStatuses, s) {
			return invalid("ip_artifact_statuses must include '%s'", s)
		}
	}
	return nil
}

func (c *Contract) validateFailSafeDefaults() error {
	d := c.FailSafeDefaults
	for _, a := range []struct{ name, value string }{
		{"on_missing_provenance", d.OnMissingProvenance},
		{"on_broken_chain", d.OnBrokenChain},
		{"on_blocked_license", d.OnBlockedLicense},
		{"on_unknown_license", d.OnUnknownLicense},
		{"on_expired_attribution", d.OnExpiredAttribution},
		{"on_needs_counsel", d.OnNeedsCounsel},
	} {
		if !slices.Contains(failSafeActions, a.value) {
			return invalid("fail_safe_defaults.%s '%s' not a valid action (accept, hold, reject)", a.name, a.value)
		}
	}
	// These three findings never leave a migration shippable.
	for _, a := range []struct{ name, value string }{
		{"on_missing_provenance", d.OnMissingProvenance},
		{"on_broken_chain", d.OnBrokenChain},
		{"on_blocked_license", d.OnBlockedLicense},
	} {
		if a.value != string(ActionReject) {
			return invalid("fail_safe_defaults.%s must be 'reject' for safety", a.name)
		}
	}
	return nil
}

func (c *Contract) validateAttributionTemplate() error {
	at := c.AttributionTemplate
	if blank(at.Format) {
		return invalid("attribution_template.format must not be empty")
	}
	if len(at.RequiredFields) == 0 {
		return invalid("attribution_template.required_fields must not be empty")
	}
	if slices.ContainsFunc(at.RequiredFields, blank) {
		return invalid("attribution_template contains empty required field")
	}
	return nil
}

func (c *Contract) validateRiskFlags() error {
	seen := map[string]struct{}{}
	for _, f := range c.RiskFlags {
		if blank(f.FlagID) {
			return invalid("risk flag_id must not be empty")
		}
		if _, dup := seen[f.FlagID]; dup {
			return invalid("duplicate risk flag_id '%s'", f.FlagID)
		}
		seen[f.FlagID] = struct{}{}
		if !slices.Contains(severities, f.Severity) {
			return invalid("risk flag '%s' has invalid severity '%s' (expected: low, medium, high, critical)", f.FlagID, f.Severity)
		}
		if blank(f.Description) {
			return invalid("risk flag '%s' has empty description", f.FlagID)
		}
	}
	return nil
}

// LicenseClass returns the definition of classID, or nil.
func (c *Contract) LicenseClass(classID string) *LicenseClass {
	for i := range c.LicensingPolicy.LicenseClassDefinitions {
		if c.LicensingPolicy.LicenseClassDefinitions[i].ClassID == classID {
			return &c.LicensingPolicy.LicenseClassDefinitions[i]
		}
	}
	return nil
}

func (c *Contract) IsLicenseAllowed(classID string) bool {
	return slices.Contains(c.LicensingPolicy.AllowedLicenseClasses, classID)
}

func (c *Contract) IsLicenseBlocked(classID string) bool {
	return slices.Contains(c.LicensingPolicy.BlockedLicenseClasses, classID)
}

// FailSafeAction maps an artifact status to the action the contract demands.
// A clear artifact is always accepted.
func (c *Contract) FailSafeAction(status ArtifactStatus) Action {
	var configured string
	switch status {
	case StatusClear:
		return ActionAccept
	case StatusBlocked:
		configured = c.FailSafeDefaults.OnBlockedLicense
	case StatusUnknown:
		configured = c.FailSafeDefaults.OnUnknownLicense
	case StatusNeedsCounsel:
		configured = c.FailSafeDefaults.OnNeedsCounsel
	case StatusExpired:
		configured = c.FailSafeDefaults.OnExpiredAttribution
	}
	switch Action(configured) {
	case ActionAccept:
		return ActionAccept
	case ActionHold:
		return ActionHold
	default:
		return ActionReject
	}
}

// ValidateChain checks that chain covers every required stage, links by hash
// when the policy demands it and records a tool version and timestamp for
// each stage. Records are linked in slice order.
func (c *Contract) ValidateChain(chain []ChainRecord) error {
	present := map[string]struct{}{}
	for _, r := range chain {
		present[r.StageID] = struct{}{}
	}
	for _, stage := range c.ProvenanceChainPolicy.RequiredStages {
		if _, ok := present[stage]; !ok {
			return invalid("provenance chain missing required stage '%s'", stage)
		}
	}

	if c.ProvenanceChainPolicy.ChainMustBeUnbroken {
		for i := 1; i < len(chain); i++ {
			prev, cur := chain[i-1], chain[i]
			if prev.OutputHash != cur.InputHash {
				return invalid("provenance chain broken: stage '%s' output_hash (%s) != stage '%s' input_hash (%s)",
					prev.StageID, prev.OutputHash, cur.StageID, cur.InputHash)
			}
		}
	}

	for _, r := range chain {
		if blank(r.ToolVersion) {
			return invalid("provenance record for stage '%s' missing tool_version", r.StageID)
		}
		if blank(r.Timestamp) {
			return invalid("provenance record for stage '%s' missing timestamp", r.StageID)
		}
	}
	return nil
}

// Assess folds the artifacts into a report. The overall status is the worst
// seen, ordered blocked > needs_counsel > unknown > expired > clear, and an
// artifact whose license class is blocked counts as blocked whatever its own
// status. Risk flags are deduplicated in first-seen order. The attribution
// notice is left for the caller to render.
func (c *Contract) Assess(runID string, chain []ChainRecord, artifacts []Artifact) Report {
	worst := StatusClear
	flags := []string{}
	for _, a := range artifacts {
		if c.IsLicenseBlocked(a.LicenseClass) {
			worst = StatusBlocked
		}
		switch {
		case a.Status == StatusBlocked:
			worst = StatusBlocked
		case a.Status == StatusNeedsCounsel && worst != StatusBlocked:
			worst = StatusNeedsCounsel
		case a.Status == StatusUnknown && worst != StatusBlocked && worst != StatusNeedsCounsel:
			worst = StatusUnknown
		case a.Status == StatusExpired && worst == StatusClear:
			worst = StatusExpired
		}
		for _, f := range a.RiskFlags {
			if !slices.Contains(flags, f) {
				flags = append(flags, f)
			}
		}
	}
	return Report{
		RunID:               runID,
		Chain:               slices.Clone(chain),
		IPArtifacts:         slices.Clone(artifacts),
		UnresolvedRiskFlags: flags,
		OverallStatus:       worst,
	}
}

// Digest returns the canonical digest of the contract.
func (c *Contract) Digest() (string, error) {
	return document.Digest(c)
}

func invalid(format string, args ...any) error {
	return document.Validationf(docName, format, args...)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
