// Package contract defines the semantic equivalence contract: what
// "equivalent" means for a migration, the deterministic tie-break rules, and
// which clauses each validator enforces.
package contract

import (
	"slices"
	"strings"

	"github.com/nightisyang/frankentui-sub001/pkg/builtin"
	"github.com/nightisyang/frankentui-sub001/pkg/document"
)

// SchemaVersion is the only contract schema version this package accepts.
const SchemaVersion = "sem-eq-contract-v1"

const docName = "semantic contract"

var schema = document.NewSchema(docName, "semantic_contract.schema.json", builtin.MustSchema(builtin.SemanticContract))

// Contract is an immutable, validated semantic equivalence contract.
type Contract struct {
	ContractID               string              `json:"contract_id"`
	SchemaVersion            string              `json:"schema_version"`
	ContractVersion          string              `json:"contract_version"`
	EquivalenceAxes          EquivalenceAxes     `json:"equivalence_axes"`
	VisualTolerancePolicy    VisualTolerance     `json:"visual_tolerance_policy"`
	ImprovementEnvelope      ImprovementEnvelope `json:"improvement_envelope"`
	DeterministicTieBreakers []TieBreakerRule    `json:"deterministic_tie_breakers"`
	Clauses                  []Clause            `json:"clauses"`
	ValidatorClauseMap       map[string][]string `json:"validator_clause_map"`
}

type EquivalenceAxes struct {
	StateTransition         string `json:"state_transition"`
	EventOrdering           string `json:"event_ordering"`
	SideEffectObservability string `json:"side_effect_observability"`
}

// VisualTolerance splits visual classes into strict (exact match) and
// perceptual (within MaxPerceptualDelta).
type VisualTolerance struct {
	StrictClasses      []string `json:"strict_classes"`
	StrictPolicy       string   `json:"strict_policy"`
	PerceptualClasses  []string `json:"perceptual_classes"`
	PerceptualPolicy   string   `json:"perceptual_policy"`
	MaxPerceptualDelta float32  `json:"max_perceptual_delta"`
}

type ImprovementEnvelope struct {
	AllowedDimensions  []string `json:"allowed_dimensions"`
	ForbiddenRewrites  []string `json:"forbidden_rewrites"`
	RequiredSafeguards []string `json:"required_safeguards"`
}

// TieBreakerRule resolves disputes between interpretations; lower priority
// values apply first.
type TieBreakerRule struct {
	Priority    uint16 `json:"priority"`
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
}

type Clause struct {
	ClauseID    string `json:"clause_id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Requirement string `json:"requirement"`
	Severity    string `json:"severity"`
}

// Parse decodes and validates a contract. The result is never partially valid.
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

// Builtin returns a freshly parsed copy of the blessed contract.
func Builtin() (*Contract, error) {
	data, err := builtin.Document(builtin.SemanticContract)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks every contract invariant and returns the first violation.
func (c *Contract) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return invalid("unsupported schema_version '%s' (expected '%s')", c.SchemaVersion, SchemaVersion)
	}
	if blank(c.ContractID) {
		return invalid("contract_id must not be empty")
	}
	if len(c.Clauses) == 0 {
		return invalid("clauses must not be empty")
	}
	if len(c.DeterministicTieBreakers) == 0 {
		return invalid("deterministic_tie_breakers must not be empty")
	}
	if len(c.ValidatorClauseMap) == 0 {
		return invalid("validator_clause_map must not be empty")
	}

	clauseIDs := make(map[string]struct{}, len(c.Clauses))
	for _, cl := range c.Clauses {
		if blank(cl.ClauseID) {
			return invalid("clause_id must not be empty")
		}
		if _, dup := clauseIDs[cl.ClauseID]; dup {
			return invalid("duplicate clause_id '%s'", cl.ClauseID)
		}
		clauseIDs[cl.ClauseID] = struct{}{}
	}

	priorities := make(map[uint16]struct{}, len(c.DeterministicTieBreakers))
	ruleIDs := make(map[string]struct{}, len(c.DeterministicTieBreakers))
	for _, rule := range c.DeterministicTieBreakers {
		if blank(rule.RuleID) {
			return invalid("tie-break rule_id must not be empty")
		}
		if _, dup := priorities[rule.Priority]; dup {
			return invalid("duplicate tie-break priority '%d'", rule.Priority)
		}
		priorities[rule.Priority] = struct{}{}
		if _, dup := ruleIDs[rule.RuleID]; dup {
			return invalid("duplicate tie-break rule_id '%s'", rule.RuleID)
		}
		ruleIDs[rule.RuleID] = struct{}{}
	}

	// Sorted so the surfaced error does not depend on map iteration order.
	for _, validatorID := range c.ValidatorIDs() {
		refs := c.ValidatorClauseMap[validatorID]
		if blank(validatorID) {
			return invalid("validator id must not be empty")
		}
		if len(refs) == 0 {
			return invalid("validator '%s' has no clause mappings", validatorID)
		}
		for _, id := range refs {
			if _, ok := clauseIDs[id]; !ok {
				return invalid("validator '%s' references unknown clause '%s'", validatorID, id)
			}
		}
	}
	return nil
}

// Clause looks up a clause by id.
func (c *Contract) Clause(id string) (Clause, bool) {
	i := slices.IndexFunc(c.Clauses, func(cl Clause) bool { return cl.ClauseID == id })
	if i < 0 {
		return Clause{}, false
	}
	return c.Clauses[i], true
}

// ClausesForValidator returns the clauses a validator enforces in declared
// order. An unknown validator yields an empty list, not an error.
func (c *Contract) ClausesForValidator(validatorID string) []Clause {
	ids := c.ValidatorClauseMap[validatorID]
	out := make([]Clause, 0, len(ids))
	for _, id := range ids {
		if cl, ok := c.Clause(id); ok {
			out = append(out, cl)
		}
	}
	return out
}

// ClauseIDs returns every clause id, sorted.
func (c *Contract) ClauseIDs() []string {
	ids := make([]string, 0, len(c.Clauses))
	for _, cl := range c.Clauses {
		ids = append(ids, cl.ClauseID)
	}
	slices.Sort(ids)
	return ids
}

// ValidatorIDs returns every validator id, sorted.
func (c *Contract) ValidatorIDs() []string {
	ids := make([]string, 0, len(c.ValidatorClauseMap))
	for id := range c.ValidatorClauseMap {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
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
