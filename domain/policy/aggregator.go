// Package policy computes the resolution of a single step from its
// recorded decisions. Stateless, re-evaluation over the same decision set
// always yields the same result.
package policy

import (
	"flowchain/domain"
)

// Resolve aggregates the decisions of one step round under the step's
// approval policy. Only decisions of assigned roles count, and only the
// latest decision per role: a role supersedes its earlier decision by
// appending a newer row.
func Resolve(step *domain.StepDetail, decisions []domain.Decision) domain.Resolution {
	latest := latestByRole(step, decisions)
	if len(latest) == 0 {
		return domain.ResolutionPending
	}

	switch step.ApprovalPolicy {
	case domain.PolicyAnyCanApprove:
		return resolveAny(step, latest)
	case domain.PolicyMajorityMustApprove:
		return resolveMajority(step, latest)
	default:
		return resolveAll(step, latest)
	}
}

func latestByRole(step *domain.StepDetail, decisions []domain.Decision) map[string]domain.DecisionOutcome {
	latest := map[string]domain.DecisionOutcome{}
	for _, d := range decisions {
		if !step.HasRole(d.Role) {
			continue
		}
		latest[d.Role] = d.Outcome
	}
	return latest
}

// resolveAll: a REJECT of a required role rejects immediately. Approval
// needs every required role approving while no assigned role, advisory
// ones included, holds an open REJECT. An advisory REJECT keeps the step
// pending without rejecting it.
func resolveAll(step *domain.StepDetail, latest map[string]domain.DecisionOutcome) domain.Resolution {
	anyReject := false
	for _, r := range step.Roles {
		outcome := latest[r.Role]
		if outcome == domain.DecisionReject {
			if r.Required {
				return domain.ResolutionRejected
			}
			anyReject = true
		}
	}
	if anyReject {
		return domain.ResolutionPending
	}
	for _, role := range step.RequiredRoles() {
		if latest[role] != domain.DecisionApprove {
			return domain.ResolutionPending
		}
	}
	return domain.ResolutionApproved
}

// resolveAny: the first APPROVE wins. Rejected only once every assigned
// role has explicitly rejected.
func resolveAny(step *domain.StepDetail, latest map[string]domain.DecisionOutcome) domain.Resolution {
	for _, outcome := range latest {
		if outcome == domain.DecisionApprove {
			return domain.ResolutionApproved
		}
	}
	for _, r := range step.Roles {
		if latest[r.Role] != domain.DecisionReject {
			return domain.ResolutionPending
		}
	}
	return domain.ResolutionRejected
}

// resolveMajority: approved once approvals exceed half of the assigned
// roles, rejected once a majority became unreachable. An exact half/half
// tie on an even role count rejects.
func resolveMajority(step *domain.StepDetail, latest map[string]domain.DecisionOutcome) domain.Resolution {
	n := len(step.Roles)
	approvals, rejections := 0, 0
	for _, outcome := range latest {
		switch outcome {
		case domain.DecisionApprove:
			approvals++
		case domain.DecisionReject:
			rejections++
		}
	}
	if approvals*2 > n {
		return domain.ResolutionApproved
	}
	// the remaining undecided roles could at best bring approvals to
	// n-rejections
	if (n-rejections)*2 <= n {
		return domain.ResolutionRejected
	}
	return domain.ResolutionPending
}
