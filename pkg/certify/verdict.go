package certify

import (
	"github.com/nightisyang/frankentui-sub001/pkg/confidence"
	"github.com/nightisyang/frankentui-sub001/pkg/evidence"
)

// VerdictFor maps a migration decision onto the manifest verdict vocabulary.
func VerdictFor(d confidence.Decision) evidence.VerdictOutcome {
	switch d {
	case confidence.AutoApprove:
		return evidence.VerdictAccept
	case confidence.HumanReview:
		return evidence.VerdictHold
	case confidence.Reject, confidence.HardReject:
		return evidence.VerdictReject
	case confidence.Rollback, confidence.ConservativeFallback:
		return evidence.VerdictRollback
	}
	// Unknown decisions take the most conservative outcome.
	return evidence.VerdictRollback
}

// EscalationFor maps a fallback-trigger action onto the verdict it demands.
func EscalationFor(a confidence.TriggerAction) evidence.VerdictOutcome {
	switch a {
	case confidence.ActionAccept:
		return evidence.VerdictAccept
	case confidence.ActionHold:
		return evidence.VerdictHold
	case confidence.ActionReject:
		return evidence.VerdictReject
	case confidence.ActionRollback, confidence.ActionConservativeFallback:
		return evidence.VerdictRollback
	}
	return evidence.VerdictRollback
}

// escalate returns the more conservative of two verdicts.
func escalate(cur, next evidence.VerdictOutcome) evidence.VerdictOutcome {
	if next.Severity() > cur.Severity() {
		return next
	}
	return cur
}
