//go:build property
// +build property

package policy_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nightisyang/frankentui-sub001/pkg/contract"
	"github.com/nightisyang/frankentui-sub001/pkg/document"
	"github.com/nightisyang/frankentui-sub001/pkg/policy"
)

// Property: catalog and cells stay in bijection; dropping either side of any pair is rejected.
func TestCatalogCellBijection(t *testing.T) {
	c, err := contract.Builtin()
	if err != nil {
		t.Fatalf("builtin contract: %v", err)
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("dropping a cell is rejected", prop.ForAll(
		func(idx int) bool {
			m, err := policy.Builtin()
			if err != nil {
				return false
			}
			m.PolicyCells = append(m.PolicyCells[:idx], m.PolicyCells[idx+1:]...)
			return document.IsValidation(m.Validate(c))
		},
		gen.IntRange(0, 12),
	))

	properties.Property("dropping a catalog entry is rejected", prop.ForAll(
		func(idx int) bool {
			m, err := policy.Builtin()
			if err != nil {
				return false
			}
			m.ConstructCatalog = append(m.ConstructCatalog[:idx], m.ConstructCatalog[idx+1:]...)
			return document.IsValidation(m.Validate(c))
		},
		gen.IntRange(0, 12),
	))

	properties.Property("every catalog construct resolves to its own cell", prop.ForAll(
		func(idx int) bool {
			m, err := policy.Builtin()
			if err != nil {
				return false
			}
			sig := m.ConstructCatalog[idx].ConstructSignature
			cell, ok := m.PolicyForConstruct(sig)
			return ok && cell.ConstructSignature == sig
		},
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t)
}
