package confidence

import (
	"fmt"
	"math"
)

// z is the normal quantile used for the approximate credible interval.
const z = 1.645

// Decision is the closed set of migration decisions, most to least permissive.
type Decision string

const (
	AutoApprove          Decision = "auto_approve"
	HumanReview          Decision = "human_review"
	Reject               Decision = "reject"
	HardReject           Decision = "hard_reject"
	Rollback             Decision = "rollback"
	ConservativeFallback Decision = "conservative_fallback"
)

func (d Decision) String() string { return string(d) }

// Posterior is a Beta distribution over the semantic pass rate.
type Posterior struct {
	Alpha         float64 `json:"alpha"`
	Beta          float64 `json:"beta"`
	Mean          float64 `json:"mean"`
	Variance      float64 `json:"variance"`
	CredibleLower float64 `json:"credible_lower"`
	CredibleUpper float64 `json:"credible_upper"`
}

// ExpectedLossResult explains a decision: the posterior it came from, the
// expected loss of each candidate action, and audit correlation ids.
type ExpectedLossResult struct {
	Decision           Decision  `json:"decision"`
	Posterior          Posterior `json:"posterior"`
	ExpectedLossAccept float64   `json:"expected_loss_accept"`
	ExpectedLossReject float64   `json:"expected_loss_reject"`
	ExpectedLossHold   float64   `json:"expected_loss_hold"`
	Rationale          string    `json:"rationale"`
	ClaimID            *string   `json:"claim_id"`
	PolicyID           *string   `json:"policy_id"`
}

// ComputePosterior updates the prior with observed successes and failures.
// The credible interval is a normal approximation widened by half the
// configured interval width and clamped to [0, 1].
func (m *Model) ComputePosterior(successes, failures uint32) Posterior {
	alpha := m.PriorConfig.SemanticPassRateAlpha + float64(successes)
	beta := m.PriorConfig.SemanticPassRateBeta + float64(failures)
	sum := alpha + beta
	mean := alpha / sum
	variance := (alpha * beta) / (sum * sum * (sum + 1))

	halfWidth := m.Calibration.CredibleIntervalWidth / 2
	spread := z * math.Sqrt(variance) * (1 + halfWidth)

	return Posterior{
		Alpha:         alpha,
		Beta:          beta,
		Mean:          mean,
		Variance:      variance,
		CredibleLower: math.Max(mean-spread, 0),
		CredibleUpper: math.Min(mean+spread, 1),
	}
}

// Decide applies the boundary cascade to the posterior mean, top down.
func (m *Model) Decide(p Posterior) Decision {
	db := m.DecisionBoundaries
	switch mean := p.Mean; {
	case mean >= db.AutoApproveThreshold:
		return AutoApprove
	case mean >= db.HumanReviewLower:
		return HumanReview
	case mean >= db.RejectThreshold:
		return Reject
	case mean >= db.HardRejectThreshold:
		return HardReject
	case mean >= db.RollbackTrigger:
		return Rollback
	default:
		return ConservativeFallback
	}
}

// ExpectedLossDecision picks the action with the least expected loss, then
// reconciles it with the boundary decision. ConservativeFallback, Rollback and
// HardReject boundaries always win, and a Reject boundary is never relaxed to
// AutoApprove.
func (m *Model) ExpectedLossDecision(p Posterior, claimID, policyID *string) ExpectedLossResult {
	lm := m.LossMatrix
	mean := p.Mean
	elAccept := mean*lm.AcceptCorrect + (1-mean)*lm.AcceptIncorrect
	elReject := mean*lm.RejectIncorrect + (1-mean)*lm.RejectCorrect
	elHold := mean*lm.HoldCorrect + (1-mean)*lm.HoldIncorrect

	var byLoss Decision
	switch {
	case elAccept <= elReject && elAccept <= elHold:
		byLoss = AutoApprove
	case elHold <= elReject:
		byLoss = HumanReview
	default:
		byLoss = Reject
	}

	boundary := m.Decide(p)
	decision := reconcile(boundary, byLoss)

	return ExpectedLossResult{
		Decision:           decision,
		Posterior:          p,
		ExpectedLossAccept: elAccept,
		ExpectedLossReject: elReject,
		ExpectedLossHold:   elHold,
		Rationale: fmt.Sprintf(
			"posterior_mean=%.4f, ci=[%.4f,%.4f], EL(accept)=%.2f, EL(reject)=%.2f, EL(hold)=%.2f, boundary=%s",
			mean, p.CredibleLower, p.CredibleUpper, elAccept, elReject, elHold, boundary),
		ClaimID:  cloneString(claimID),
		PolicyID: cloneString(policyID),
	}
}

func reconcile(boundary, byLoss Decision) Decision {
	switch boundary {
	case ConservativeFallback, Rollback, HardReject:
		return boundary
	case Reject:
		if byLoss == AutoApprove {
			return boundary
		}
		return byLoss
	case AutoApprove, HumanReview:
		return byLoss
	}
	return byLoss
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
