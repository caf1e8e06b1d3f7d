// Package evidence implements the evidence manifest: a tamper-evident,
// hash-chained ledger of the pipeline stages that produced a migrated
// artifact, together with the run's certification verdict.
package evidence

import (
	"slices"
	"strings"
	"time"

	"github.com/nightisyang/frankentui-sub001/pkg/builtin"
	"github.com/nightisyang/frankentui-sub001/pkg/document"
)

// SchemaVersion is the only manifest schema version this package accepts.
const SchemaVersion = "evidence-manifest-v1"

const docName = "evidence manifest"

var schema = document.NewSchema(docName, "evidence_manifest.schema.json", builtin.MustSchema(builtin.EvidenceManifest))

// Manifest is an immutable, validated evidence manifest.
type Manifest struct {
	ManifestID               string                   `json:"manifest_id"`
	SchemaVersion            string                   `json:"schema_version"`
	ManifestVersion          string                   `json:"manifest_version"`
	RunID                    string                   `json:"run_id"`
	SourceFingerprint        SourceFingerprint        `json:"source_fingerprint"`
	Stages                   []StageRecord            `json:"stages"`
	GeneratedCodeFingerprint GeneratedCodeFingerprint `json:"generated_code_fingerprint"`
	CertificationVerdict     CertificationVerdict     `json:"certification_verdict"`
	DeterminismAttestation   DeterminismAttestation   `json:"determinism_attestation"`
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := schema.Decode(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Builtin returns a freshly parsed copy of the blessed manifest.
func Builtin() (*Manifest, error) {
	data, err := builtin.Document(builtin.EvidenceManifest)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks every manifest invariant, section by section.
func (m *Manifest) Validate() error {
	if m.SchemaVersion != SchemaVersion {
		return invalid("unsupported evidence manifest schema_version '%s' (expected '%s')", m.SchemaVersion, SchemaVersion)
	}
	if blank(m.ManifestID) {
		return invalid("manifest_id must not be empty")
	}
	if blank(m.RunID) {
		return invalid("run_id must not be empty")
	}
	for _, check := range []func() error{
		m.validateSourceFingerprint,
		m.validateStages,
		m.validateGeneratedCode,
		m.validateVerdict,
		m.validateDeterminism,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manifest) validateSourceFingerprint() error {
	fp := m.SourceFingerprint
	if blank(fp.SourceHash) {
		return invalid("source_fingerprint.source_hash must not be empty")
	}
	if fp.RepoURL == nil && fp.LocalPath == nil {
		return invalid("source_fingerprint must specify repo_url or local_path")
	}
	if len(fp.ParserVersions) == 0 {
		return invalid("source_fingerprint.parser_versions must not be empty")
	}
	for _, lf := range fp.Lockfiles {
		if blank(lf.Path) {
			return invalid("lockfile path must not be empty")
		}
		if blank(lf.SHA256) {
			return invalid("lockfile '%s' sha256 must not be empty", lf.Path)
		}
	}
	return nil
}

func (m *Manifest) validateStages() error {
	if len(m.Stages) == 0 {
		return invalid("stages must not be empty")
	}

	covered := toSet(m.CertificationVerdict.SemanticClauseCoverage.Covered)
	linked := map[string]struct{}{}
	stageIDs := map[string]struct{}{}
	correlationIDs := map[string]struct{}{}
	evidenceIDs := map[string]struct{}{}
	runPolicy, runTrace := m.Stages[0].PolicyID, m.Stages[0].TraceID

	for i, s := range m.Stages {
		if blank(s.StageID) {
			return invalid("stage_id must not be empty")
		}
		if _, dup := stageIDs[s.StageID]; dup {
			return invalid("duplicate stage_id '%s'", s.StageID)
		}
		stageIDs[s.StageID] = struct{}{}

		if i == 0 {
			if s.StageIndex != 0 {
				return invalid("first stage '%s' must have stage_index 0", s.StageID)
			}
		} else if want := m.Stages[i-1].StageIndex + 1; s.StageIndex != want {
			return invalid("stage_index for '%s' is %d but expected %d (must be consecutive)", s.StageID, s.StageIndex, want)
		}

		if blank(s.CorrelationID) {
			return invalid("stage '%s' correlation_id must not be empty", s.StageID)
		}
		if _, dup := correlationIDs[s.CorrelationID]; dup {
			return invalid("duplicate correlation_id '%s'", s.CorrelationID)
		}
		correlationIDs[s.CorrelationID] = struct{}{}

		if blank(s.ClaimID) {
			return invalid("stage '%s' claim_id must not be empty", s.StageID)
		}
		if _, ok := covered[s.ClaimID]; !ok {
			return invalid("stage '%s' claim_id '%s' must be present in semantic_clause_coverage.covered", s.StageID, s.ClaimID)
		}
		linked[s.ClaimID] = struct{}{}

		if blank(s.EvidenceID) {
			return invalid("stage '%s' evidence_id must not be empty", s.StageID)
		}
		if _, dup := evidenceIDs[s.EvidenceID]; dup {
			return invalid("duplicate evidence_id '%s'", s.EvidenceID)
		}
		evidenceIDs[s.EvidenceID] = struct{}{}

		if blank(s.PolicyID) {
			return invalid("stage '%s' policy_id must not be empty", s.StageID)
		}
		if blank(s.TraceID) {
			return invalid("stage '%s' trace_id must not be empty", s.StageID)
		}
		if s.PolicyID != runPolicy {
			return invalid("stage '%s' policy_id '%s' does not match run policy_id '%s'", s.StageID, s.PolicyID, runPolicy)
		}
		if s.TraceID != runTrace {
			return invalid("stage '%s' trace_id '%s' does not match run trace_id '%s'", s.StageID, s.TraceID, runTrace)
		}

		if err := validateTiming(s); err != nil {
			return err
		}

		if blank(s.InputHash) {
			return invalid("stage '%s' input_hash must not be empty", s.StageID)
		}
		failed := s.Status == StatusFailed
		if !failed && blank(s.OutputHash) {
			return invalid("stage '%s' output_hash must not be empty for non-failed stages", s.StageID)
		}
		if failed && (s.Error == nil || blank(*s.Error)) {
			return invalid("stage '%s' has status 'failed' but no error message", s.StageID)
		}
		if !failed && s.Error != nil {
			return invalid("stage '%s' has an error message but status '%s'", s.StageID, s.Status)
		}
	}

	if err := m.verifyHashChain(); err != nil {
		return err
	}

	var unlinked []string
	for id := range covered {
		if _, ok := linked[id]; !ok {
			unlinked = append(unlinked, id)
		}
	}
	if len(unlinked) > 0 {
		slices.Sort(unlinked)
		return invalid("covered claims missing stage linkage: %s", strings.Join(unlinked, ", "))
	}
	return nil
}

func validateTiming(s StageRecord) error {
	if blank(s.StartedAt) || blank(s.FinishedAt) {
		return invalid("stage '%s' must have non-empty started_at and finished_at", s.StageID)
	}
	started, err := time.Parse(time.RFC3339, s.StartedAt)
	if err != nil {
		return invalid("stage '%s' started_at '%s' is not an RFC 3339 timestamp", s.StageID, s.StartedAt)
	}
	finished, err := time.Parse(time.RFC3339, s.FinishedAt)
	if err != nil {
		return invalid("stage '%s' finished_at '%s' is not an RFC 3339 timestamp", s.StageID, s.FinishedAt)
	}
	if finished.Before(started) {
		return invalid("stage '%s' finished_at precedes started_at", s.StageID)
	}
	return nil
}

// verifyHashChain walks adjacent stage pairs. Only an ok predecessor obliges
// its successor's input hash.
func (m *Manifest) verifyHashChain() error {
	for i := 1; i < len(m.Stages); i++ {
		prev, cur := m.Stages[i-1], m.Stages[i]
		if prev.Status == StatusOK && cur.InputHash != prev.OutputHash {
			return invalid("hash chain broken: stage '%s' output_hash (%s) != stage '%s' input_hash (%s)",
				prev.StageID, prev.OutputHash, cur.StageID, cur.InputHash)
		}
	}
	return nil
}

func (m *Manifest) validateGeneratedCode() error {
	g := m.GeneratedCodeFingerprint
	switch {
	case blank(g.CodeHash):
		return invalid("generated_code_fingerprint.code_hash must not be empty")
	case blank(g.FormatterVersion):
		return invalid("generated_code_fingerprint.formatter_version must not be empty")
	case blank(g.LinterVersion):
		return invalid("generated_code_fingerprint.linter_version must not be empty")
	}
	return nil
}

func (m *Manifest) validateVerdict() error {
	v := m.CertificationVerdict
	if v.Confidence < 0 || v.Confidence > 1 {
		return invalid("certification_verdict.confidence must be in [0.0, 1.0], got %v", v.Confidence)
	}
	if v.Verdict == VerdictAccept && v.TestFailCount > 0 {
		return invalid("certification_verdict cannot be 'accept' with failing tests")
	}

	covered := map[string]struct{}{}
	for _, id := range v.SemanticClauseCoverage.Covered {
		if blank(id) {
			return invalid("semantic_clause_coverage.covered must not contain empty claim IDs")
		}
		if _, dup := covered[id]; dup {
			return invalid("semantic_clause_coverage.covered contains duplicate claim_id '%s'", id)
		}
		covered[id] = struct{}{}
	}
	uncovered := map[string]struct{}{}
	for _, id := range v.SemanticClauseCoverage.Uncovered {
		if blank(id) {
			return invalid("semantic_clause_coverage.uncovered must not contain empty claim IDs")
		}
		if _, both := covered[id]; both {
			return invalid("semantic clause '%s' cannot be both covered and uncovered", id)
		}
		if _, dup := uncovered[id]; dup {
			return invalid("semantic_clause_coverage.uncovered contains duplicate claim_id '%s'", id)
		}
		uncovered[id] = struct{}{}
	}
	if len(covered) == 0 && len(uncovered) == 0 {
		return invalid("semantic_clause_coverage must include at least one claim ID")
	}
	return nil
}

func (m *Manifest) validateDeterminism() error {
	d := m.DeterminismAttestation
	if d.IdenticalRunsCount == 0 {
		return invalid("determinism_attestation.identical_runs_count must be > 0")
	}
	if d.DivergenceDetected && d.ManifestHashStable {
		return invalid("determinism_attestation: divergence_detected=true is inconsistent with manifest_hash_stable=true")
	}
	return nil
}

// StageByCorrelationID finds a stage by correlation id.
func (m *Manifest) StageByCorrelationID(id string) (StageRecord, bool) {
	i := slices.IndexFunc(m.Stages, func(s StageRecord) bool { return s.CorrelationID == id })
	if i < 0 {
		return StageRecord{}, false
	}
	return m.Stages[i], true
}

// ObservedClaimIDs is the sorted union of covered, uncovered and stage claim ids.
func (m *Manifest) ObservedClaimIDs() []string {
	set := toSet(m.CertificationVerdict.SemanticClauseCoverage.Covered)
	for _, id := range m.CertificationVerdict.SemanticClauseCoverage.Uncovered {
		set[id] = struct{}{}
	}
	for _, s := range m.Stages {
		set[s.ClaimID] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// HashChainIntact reports whether the stage ledger satisfies the hash chain.
// It is always true for a manifest that passed Validate; callers use it on
// manifests assembled in memory.
func (m *Manifest) HashChainIntact() bool {
	return m.verifyHashChain() == nil
}

// Digest returns the canonical digest of the whole manifest.
func (m *Manifest) Digest() (string, error) {
	return document.Digest(m)
}

func invalid(format string, args ...any) error {
	return document.Validationf(docName, format, args...)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
