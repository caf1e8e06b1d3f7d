package certify

import (
	"fmt"
	"strings"

	"github.com/nightisyang/frankentui-sub001/pkg/contract"
	"github.com/nightisyang/frankentui-sub001/pkg/document"
	"github.com/nightisyang/frankentui-sub001/pkg/evidence"
)

const gateDoc = "runtime contract gate"

// RuntimeContractGate runs the contract's compiled validators over every claim
// id the manifest mentions. Orphan claims and failing validators are
// validation errors; the report is returned either way.
func RuntimeContractGate(c *contract.Contract, m *evidence.Manifest) (contract.GateReport, error) {
	report := c.ExecuteValidators(m.ObservedClaimIDs())
	if len(report.OrphanClaimIDs) > 0 {
		return report, document.Validationf(gateDoc, "contract gate orphan claims: %s", strings.Join(report.OrphanClaimIDs, ", "))
	}
	var failed []string
	for _, r := range report.ValidatorResults {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s(%s)", r.ValidatorID, strings.Join(r.MissingClaimIDs, ",")))
		}
	}
	if len(failed) > 0 {
		return report, document.Validationf(gateDoc, "contract gate validator failures: %s", strings.Join(failed, "; "))
	}
	return report, nil
}
