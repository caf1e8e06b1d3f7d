package evidence

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StatusOK      StageStatus = "ok"
	StatusFailed  StageStatus = "failed"
	StatusSkipped StageStatus = "skipped"
)

// VerdictOutcome is the certification verdict vocabulary, least to most
// conservative.
type VerdictOutcome string

const (
	VerdictAccept   VerdictOutcome = "accept"
	VerdictHold     VerdictOutcome = "hold"
	VerdictReject   VerdictOutcome = "reject"
	VerdictRollback VerdictOutcome = "rollback"
)

// Severity orders verdicts by conservativeness: accept < hold < reject < rollback.
func (v VerdictOutcome) Severity() int {
	switch v {
	case VerdictAccept:
		return 0
	case VerdictHold:
		return 1
	case VerdictReject:
		return 2
	case VerdictRollback:
		return 3
	}
	return -1
}

type SourceFingerprint struct {
	RepoURL        *string           `json:"repo_url,omitempty"`
	RepoCommit     *string           `json:"repo_commit,omitempty"`
	LocalPath      *string           `json:"local_path,omitempty"`
	SourceHash     string            `json:"source_hash"`
	Lockfiles      []LockfileEntry   `json:"lockfiles"`
	ParserVersions map[string]string `json:"parser_versions"`
}

type LockfileEntry struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes uint64 `json:"size_bytes"`
}

// StageRecord is one entry in the hash-chained stage ledger.
type StageRecord struct {
	StageID       string      `json:"stage_id"`
	StageIndex    uint32      `json:"stage_index"`
	CorrelationID string      `json:"correlation_id"`
	ClaimID       string      `json:"claim_id"`
	EvidenceID    string      `json:"evidence_id"`
	PolicyID      string      `json:"policy_id"`
	TraceID       string      `json:"trace_id"`
	StartedAt     string      `json:"started_at"`
	FinishedAt    string      `json:"finished_at"`
	Status        StageStatus `json:"status"`
	InputHash     string      `json:"input_hash"`
	OutputHash    string      `json:"output_hash"`
	ArtifactPaths []string    `json:"artifact_paths"`
	Error         *string     `json:"error,omitempty"`
}

type GeneratedCodeFingerprint struct {
	CodeHash         string `json:"code_hash"`
	FormatterVersion string `json:"formatter_version"`
	LinterVersion    string `json:"linter_version"`
}

type CertificationVerdict struct {
	Verdict                VerdictOutcome         `json:"verdict"`
	Confidence             float64                `json:"confidence"`
	TestPassCount          uint32                 `json:"test_pass_count"`
	TestFailCount          uint32                 `json:"test_fail_count"`
	TestSkipCount          uint32                 `json:"test_skip_count"`
	SemanticClauseCoverage SemanticClauseCoverage `json:"semantic_clause_coverage"`
	BenchmarkSummary       BenchmarkSummary       `json:"benchmark_summary"`
	RiskFlags              []string               `json:"risk_flags"`
}

type SemanticClauseCoverage struct {
	Covered   []string `json:"covered"`
	Uncovered []string `json:"uncovered"`
}

type BenchmarkSummary struct {
	LatencyP50Ms        float64 `json:"latency_p50_ms"`
	LatencyP99Ms        float64 `json:"latency_p99_ms"`
	ThroughputOpsPerSec float64 `json:"throughput_ops_per_sec"`
}

type DeterminismAttestation struct {
	IdenticalRunsCount uint32 `json:"identical_runs_count"`
	ManifestHashStable bool   `json:"manifest_hash_stable"`
	DivergenceDetected bool   `json:"divergence_detected"`
}

// LineageEntry is the replay-oriented projection of a stage.
type LineageEntry struct {
	StageID       string      `json:"stage_id"`
	StageIndex    uint32      `json:"stage_index"`
	CorrelationID string      `json:"correlation_id"`
	ClaimID       string      `json:"claim_id"`
	EvidenceID    string      `json:"evidence_id"`
	PolicyID      string      `json:"policy_id"`
	TraceID       string      `json:"trace_id"`
	InputHash     string      `json:"input_hash"`
	OutputHash    string      `json:"output_hash"`
	Status        StageStatus `json:"status"`
}

// StageEventCompleted is the event name of every exported stage record.
const StageEventCompleted = "stage_completed"

// Record is one structured, JSONL-serialisable stage event.
type Record struct {
	Event         string      `json:"event"`
	RunID         string      `json:"run_id"`
	CorrelationID string      `json:"correlation_id"`
	StageID       string      `json:"stage_id"`
	StageIndex    uint32      `json:"stage_index"`
	ClaimID       string      `json:"claim_id"`
	EvidenceID    string      `json:"evidence_id"`
	PolicyID      string      `json:"policy_id"`
	TraceID       string      `json:"trace_id"`
	Timestamp     string      `json:"timestamp"`
	Status        StageStatus `json:"status"`
	InputHash     string      `json:"input_hash"`
	OutputHash    string      `json:"output_hash"`
	ArtifactCount uint32      `json:"artifact_count"`
	Error         *string     `json:"error,omitempty"`
}
