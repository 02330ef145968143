package inspectflow

import "fmt"

// RejectPolicy decides which reviewers may reject a submission
type RejectPolicy string

const (
	// RejectByEditRights lets a reviewer reject only while it holds edit
	// rights on the submission.
	RejectByEditRights RejectPolicy = "edit_rights"
	// RejectAtOrAfterStage lets any reviewer whose stage is at or after the
	// current stage reject, including roles whose turn has not yet arrived.
	RejectAtOrAfterStage RejectPolicy = "at_or_after_stage"
)

// ParseRejectPolicy validates a configured policy name
func ParseRejectPolicy(s string) (RejectPolicy, error) {
	switch p := RejectPolicy(s); p {
	case RejectByEditRights, RejectAtOrAfterStage:
		return p, nil
	case "":
		return RejectByEditRights, nil
	}
	return "", NewInvalidInputError(fmt.Sprintf("unknown reject policy %q", s))
}

// Policy holds the configurable business rules of the workflow
type Policy struct {
	RejectPolicy RejectPolicy
	// AllowResign permits a role to overwrite its signature while its edit
	// window is open. When false a second approve fails with AlreadySigned.
	AllowResign bool
	// RequireSupervisorResign forces a fresh Supervisor signature on resubmit.
	RequireSupervisorResign bool
}

// DefaultPolicy returns the policy used when none is configured
func DefaultPolicy() Policy {
	return Policy{
		RejectPolicy: RejectByEditRights,
		AllowResign:  true,
	}
}

// MayReject reports whether the role may reject given the current view
func (p Policy) MayReject(v SignatureView, role Role) bool {
	if !role.IsReviewer() || !v.Status.IsReview() {
		return false
	}
	switch p.RejectPolicy {
	case RejectAtOrAfterStage:
		return role.Rank() >= v.Status.Rank()
	default:
		return Resolve(v, role).CanSign
	}
}
