package policy

// HandlingClass says how a construct is carried across a migration.
type HandlingClass string

const (
	HandlingExact       HandlingClass = "exact"
	HandlingApproximate HandlingClass = "approximate"
	HandlingExtendFTUI  HandlingClass = "extend_ftui"
	HandlingUnsupported HandlingClass = "unsupported"
)

// RiskLevel is an ordered severity: low < medium < high < critical.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists every risk level in ascending order.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
}

// Rank orders risk levels; higher is more severe.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

// Category groups constructs (state, layout, style, ...).
type Category struct {
	CategoryID  string `json:"category_id"`
	Description string `json:"description"`
}

// CatalogEntry names one construct signature and its category.
type CatalogEntry struct {
	ConstructSignature string `json:"construct_signature"`
	CategoryID         string `json:"category_id"`
	Summary            string `json:"summary"`
}

// Cell is the handling decision for a single construct signature.
type Cell struct {
	ConstructSignature    string        `json:"construct_signature"`
	HandlingClass         HandlingClass `json:"handling_class"`
	Rationale             string        `json:"rationale"`
	RiskLevel             RiskLevel     `json:"risk_level"`
	FallbackBehavior      string        `json:"fallback_behavior"`
	UserMessaging         string        `json:"user_messaging"`
	PlannerStrategy       string        `json:"planner_strategy"`
	SemanticClauseLinks   []string      `json:"semantic_clause_links"`
	CertificationEvidence []string      `json:"certification_evidence"`
}

type PlannerProjection struct {
	RequiredFields       []string `json:"required_fields"`
	DeterministicSortKey string   `json:"deterministic_sort_key"`
}

type CertificationProjection struct {
	RequiredFields             []string    `json:"required_fields"`
	RequiredRiskLevels         []RiskLevel `json:"required_risk_levels"`
	RequiresClauseTraceability bool        `json:"requires_clause_traceability"`
}

// PlannerRow is the planner's view of one cell, joined with its category.
type PlannerRow struct {
	ConstructSignature string        `json:"construct_signature"`
	CategoryID         string        `json:"category_id"`
	HandlingClass      HandlingClass `json:"handling_class"`
	PlannerStrategy    string        `json:"planner_strategy"`
	FallbackBehavior   string        `json:"fallback_behavior"`
	RiskLevel          RiskLevel     `json:"risk_level"`
}

// CertificationRow is the audit view of one cell.
type CertificationRow struct {
	ConstructSignature    string        `json:"construct_signature"`
	HandlingClass         HandlingClass `json:"handling_class"`
	RiskLevel             RiskLevel     `json:"risk_level"`
	SemanticClauseLinks   []string      `json:"semantic_clause_links"`
	CertificationEvidence []string      `json:"certification_evidence"`
	UserMessaging         string        `json:"user_messaging"`
}
