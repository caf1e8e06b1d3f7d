// Package policy implements the transformation policy matrix: one handling
// decision per construct signature, each traced to semantic contract clauses.
//
// A matrix is only valid relative to a contract. Parse takes the contract
// explicitly; Builtin pairs the blessed matrix with the blessed contract.
package policy

import (
	"slices"
	"strings"

	"github.com/nightisyang/frankentui-sub001/pkg/builtin"
	"github.com/nightisyang/frankentui-sub001/pkg/contract"
	"github.com/nightisyang/frankentui-sub001/pkg/document"
)

// SchemaVersion is the only policy matrix schema version this package accepts.
const SchemaVersion = "transform-policy-v1"

const docName = "transformation policy"

// RequiredCategories must all be declared by every matrix.
var RequiredCategories = []string{"state", "layout", "style", "effects", "accessibility", "terminal_capability"}

var schema = document.NewSchema(docName, "transformation_policy.schema.json", builtin.MustSchema(builtin.TransformationPolicy))

// Matrix is an immutable, validated transformation policy matrix.
type Matrix struct {
	PolicyID                string                  `json:"policy_id"`
	SchemaVersion           string                  `json:"schema_version"`
	PolicyVersion           string                  `json:"policy_version"`
	Categories              []Category              `json:"categories"`
	ConstructCatalog        []CatalogEntry          `json:"construct_catalog"`
	PolicyCells             []Cell                  `json:"policy_cells"`
	PlannerProjection       PlannerProjection       `json:"planner_projection"`
	CertificationProjection CertificationProjection `json:"certification_projection"`
}

// Parse decodes data and validates it against c.
func Parse(data []byte, c *contract.Contract) (*Matrix, error) {
	var m Matrix
	if err := schema.Decode(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(c); err != nil {
		return nil, err
	}
	return &m, nil
}

// Builtin returns a freshly parsed copy of the blessed matrix, validated
// against the blessed contract.
func Builtin() (*Matrix, error) {
	c, err := contract.Builtin()
	if err != nil {
		return nil, err
	}
	data, err := builtin.Document(builtin.TransformationPolicy)
	if err != nil {
		return nil, err
	}
	return Parse(data, c)
}

// Validate checks the matrix invariants, resolving clause links against c.
func (m *Matrix) Validate(c *contract.Contract) error {
	if c == nil {
		return invalid("validate requires a semantic contract")
	}
	if m.SchemaVersion != SchemaVersion {
		return invalid("unsupported transformation policy schema_version '%s' (expected '%s')", m.SchemaVersion, SchemaVersion)
	}
	if blank(m.PolicyID) {
		return invalid("policy_id must not be empty")
	}
	switch {
	case len(m.Categories) == 0:
		return invalid("categories must not be empty")
	case len(m.ConstructCatalog) == 0:
		return invalid("construct_catalog must not be empty")
	case len(m.PolicyCells) == 0:
		return invalid("policy_cells must not be empty")
	case len(m.PlannerProjection.RequiredFields) == 0:
		return invalid("planner_projection.required_fields must not be empty")
	case blank(m.PlannerProjection.DeterministicSortKey):
		return invalid("planner_projection.deterministic_sort_key must not be empty")
	case len(m.CertificationProjection.RequiredFields) == 0:
		return invalid("certification_projection.required_fields must not be empty")
	case len(m.CertificationProjection.RequiredRiskLevels) == 0:
		return invalid("certification_projection.required_risk_levels must not be empty")
	}

	categories, err := m.validateCategories()
	if err != nil {
		return err
	}
	catalog, err := m.validateCatalog(categories)
	if err != nil {
		return err
	}
	if err := m.validateCells(catalog, c); err != nil {
		return err
	}
	return m.validateRiskLevels()
}

func (m *Matrix) validateCategories() (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(m.Categories))
	for _, cat := range m.Categories {
		if blank(cat.CategoryID) {
			return nil, invalid("category_id must not be empty")
		}
		if blank(cat.Description) {
			return nil, invalid("category '%s' has empty description", cat.CategoryID)
		}
		if _, dup := ids[cat.CategoryID]; dup {
			return nil, invalid("duplicate category '%s'", cat.CategoryID)
		}
		ids[cat.CategoryID] = struct{}{}
	}
	for _, req := range RequiredCategories {
		if _, ok := ids[req]; !ok {
			return nil, invalid("required policy category '%s' is missing", req)
		}
	}
	return ids, nil
}

func (m *Matrix) validateCatalog(categories map[string]struct{}) (map[string]string, error) {
	bySignature := make(map[string]string, len(m.ConstructCatalog))
	for _, e := range m.ConstructCatalog {
		if blank(e.ConstructSignature) {
			return nil, invalid("construct_signature must not be empty")
		}
		if blank(e.Summary) {
			return nil, invalid("construct '%s' has empty summary", e.ConstructSignature)
		}
		if _, ok := categories[e.CategoryID]; !ok {
			return nil, invalid("construct '%s' references unknown category '%s'", e.ConstructSignature, e.CategoryID)
		}
		if _, dup := bySignature[e.ConstructSignature]; dup {
			return nil, invalid("duplicate construct_signature '%s' in construct_catalog", e.ConstructSignature)
		}
		bySignature[e.ConstructSignature] = e.CategoryID
	}
	return bySignature, nil
}

func (m *Matrix) validateCells(catalog map[string]string, c *contract.Contract) error {
	clauses := make(map[string]struct{}, len(c.Clauses))
	for _, id := range c.ClauseIDs() {
		clauses[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(m.PolicyCells))
	prev := ""
	for i, cell := range m.PolicyCells {
		sig := cell.ConstructSignature
		if blank(sig) {
			return invalid("policy cell construct_signature must not be empty")
		}
		if _, ok := catalog[sig]; !ok {
			return invalid("policy cell '%s' not present in construct_catalog", sig)
		}
		if _, dup := seen[sig]; dup {
			return invalid("duplicate policy cell for construct '%s'", sig)
		}
		seen[sig] = struct{}{}
		if i > 0 && sig < prev {
			return invalid("policy_cells must be sorted by construct_signature for deterministic consumption")
		}
		prev = sig

		for _, f := range []struct{ name, value string }{
			{"rationale", cell.Rationale},
			{"fallback_behavior", cell.FallbackBehavior},
			{"user_messaging", cell.UserMessaging},
			{"planner_strategy", cell.PlannerStrategy},
		} {
			if blank(f.value) {
				return invalid("construct '%s' has empty %s", sig, f.name)
			}
		}

		if len(cell.SemanticClauseLinks) == 0 {
			return invalid("construct '%s' must map to at least one semantic clause", sig)
		}
		for _, id := range cell.SemanticClauseLinks {
			if _, ok := clauses[id]; !ok {
				return invalid("construct '%s' references unknown semantic clause '%s'", sig, id)
			}
		}
		if len(cell.CertificationEvidence) == 0 {
			return invalid("construct '%s' must define certification_evidence", sig)
		}
		for _, ev := range cell.CertificationEvidence {
			if blank(ev) {
				return invalid("construct '%s' contains empty certification evidence entry", sig)
			}
		}
	}

	var missing []string
	for sig := range catalog {
		if _, ok := seen[sig]; !ok {
			missing = append(missing, sig)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return invalid("construct(s) without explicit handling class: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (m *Matrix) validateRiskLevels() error {
	got := make(map[RiskLevel]struct{}, len(m.CertificationProjection.RequiredRiskLevels))
	for _, r := range m.CertificationProjection.RequiredRiskLevels {
		got[r] = struct{}{}
	}
	want := RiskLevels()
	if len(got) != len(want) {
		return invalid("certification_projection.required_risk_levels must include low, medium, high, critical")
	}
	for _, r := range want {
		if _, ok := got[r]; !ok {
			return invalid("certification_projection.required_risk_levels must include low, medium, high, critical")
		}
	}
	return nil
}

// PolicyForConstruct returns the cell for a construct signature.
func (m *Matrix) PolicyForConstruct(signature string) (Cell, bool) {
	i, found := slices.BinarySearchFunc(m.PolicyCells, signature, func(c Cell, s string) int {
		return strings.Compare(c.ConstructSignature, s)
	})
	if !found {
		return Cell{}, false
	}
	return m.PolicyCells[i], true
}

// PlannerRows projects every cell for the planner, sorted by signature.
func (m *Matrix) PlannerRows() []PlannerRow {
	category := make(map[string]string, len(m.ConstructCatalog))
	for _, e := range m.ConstructCatalog {
		category[e.ConstructSignature] = e.CategoryID
	}
	rows := make([]PlannerRow, 0, len(m.PolicyCells))
	for _, cell := range m.PolicyCells {
		rows = append(rows, PlannerRow{
			ConstructSignature: cell.ConstructSignature,
			CategoryID:         category[cell.ConstructSignature],
			HandlingClass:      cell.HandlingClass,
			PlannerStrategy:    cell.PlannerStrategy,
			FallbackBehavior:   cell.FallbackBehavior,
			RiskLevel:          cell.RiskLevel,
		})
	}
	slices.SortStableFunc(rows, func(a, b PlannerRow) int {
		return strings.Compare(a.ConstructSignature, b.ConstructSignature)
	})
	return rows
}

// CertificationRows projects every cell for audit, sorted by signature.
func (m *Matrix) CertificationRows() []CertificationRow {
	rows := make([]CertificationRow, 0, len(m.PolicyCells))
	for _, cell := range m.PolicyCells {
		rows = append(rows, CertificationRow{
			ConstructSignature:    cell.ConstructSignature,
			HandlingClass:         cell.HandlingClass,
			RiskLevel:             cell.RiskLevel,
			SemanticClauseLinks:   slices.Clone(cell.SemanticClauseLinks),
			CertificationEvidence: slices.Clone(cell.CertificationEvidence),
			UserMessaging:         cell.UserMessaging,
		})
	}
	slices.SortStableFunc(rows, func(a, b CertificationRow) int {
		return strings.Compare(a.ConstructSignature, b.ConstructSignature)
	})
	return rows
}

// Digest returns the canonical digest of the matrix.
func (m *Matrix) Digest() (string, error) {
	return document.Digest(m)
}

func invalid(format string, args ...any) error {
	return document.Validationf(docName, format, args...)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
