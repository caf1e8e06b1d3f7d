package contract

import "slices"

// CompiledValidator is a validator reduced to the clause ids it requires.
type CompiledValidator struct {
	ValidatorID string   `json:"validator_id"`
	ClauseIDs   []string `json:"clause_ids"`
}

// ValidatorExecution is the outcome of running one compiled validator against
// the claim ids a run observed.
type ValidatorExecution struct {
	ValidatorID     string   `json:"validator_id"`
	Passed          bool     `json:"passed"`
	MissingClaimIDs []string `json:"missing_claim_ids"`
}

// GateReport aggregates validator executions. Orphan claims are observed ids
// the contract does not define.
type GateReport struct {
	Passed           bool                 `json:"passed"`
	ValidatorResults []ValidatorExecution `json:"validator_results"`
	OrphanClaimIDs   []string             `json:"orphan_claim_ids"`
}

// Execute reports which of the validator's clauses were not observed.
func (v CompiledValidator) Execute(observed map[string]struct{}) ValidatorExecution {
	missing := []string{}
	for _, id := range v.ClauseIDs {
		if _, ok := observed[id]; !ok {
			missing = append(missing, id)
		}
	}
	return ValidatorExecution{
		ValidatorID:     v.ValidatorID,
		Passed:          len(missing) == 0,
		MissingClaimIDs: missing,
	}
}

// CompileValidators returns one compiled validator per validator id, sorted
// by id. Clause ids keep their declared order.
func (c *Contract) CompileValidators() []CompiledValidator {
	ids := c.ValidatorIDs()
	out := make([]CompiledValidator, 0, len(ids))
	for _, id := range ids {
		out = append(out, CompiledValidator{
			ValidatorID: id,
			ClauseIDs:   slices.Clone(c.ValidatorClauseMap[id]),
		})
	}
	return out
}

// ExecuteValidators runs every compiled validator over the observed claim ids.
// The gate passes when no claim is orphaned and every validator passes.
func (c *Contract) ExecuteValidators(observed []string) GateReport {
	seen := make(map[string]struct{}, len(observed))
	for _, id := range observed {
		seen[id] = struct{}{}
	}
	known := make(map[string]struct{}, len(c.Clauses))
	for _, cl := range c.Clauses {
		known[cl.ClauseID] = struct{}{}
	}

	orphans := []string{}
	for id := range seen {
		if _, ok := known[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	slices.Sort(orphans)

	report := GateReport{Passed: len(orphans) == 0, OrphanClaimIDs: orphans}
	for _, v := range c.CompileValidators() {
		res := v.Execute(seen)
		if !res.Passed {
			report.Passed = false
		}
		report.ValidatorResults = append(report.ValidatorResults, res)
	}
	return report
}
