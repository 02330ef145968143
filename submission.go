package inspectflow

import (
	"encoding/json"
	"time"
)

// SignatureBlock is one role's sign-off on a submission. SignedAt, Actor and
// Signature are always written together.
type SignatureBlock struct {
	Actor     string     `json:"actor,omitempty"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
	Comments  string     `json:"comments,omitempty"`
	Signature string     `json:"signature,omitempty"`
}

// Signed reports whether the block holds a committed signature
func (b SignatureBlock) Signed() bool {
	return b.SignedAt != nil
}

// Consistent reports whether the block satisfies the atomic-signing invariant
func (b SignatureBlock) Consistent() bool {
	if b.SignedAt == nil {
		return true
	}
	return b.Actor != "" && b.Signature != ""
}

func (b *SignatureBlock) sign(actor, signature, comments string, at time.Time) {
	ts := at
	b.Actor = actor
	b.Signature = signature
	b.Comments = comments
	b.SignedAt = &ts
}

func (b *SignatureBlock) clear() {
	*b = SignatureBlock{}
}

// Rejection records who rejected a submission, from which stage and why
type Rejection struct {
	Stage  Status    `json:"stage"`
	Role   Role      `json:"role"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	By     string    `json:"by"`
}

// AuditEntry is one committed action in a submission's history
type AuditEntry struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Role     Role      `json:"role"`
	Action   Action    `json:"action"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Resigned bool      `json:"resigned,omitempty"`
	Note     string    `json:"note,omitempty"`
}

// Submission is one inspection report and its workflow fields
type Submission struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status    Status `json:"workflow_status"`
	CreatorID string `json:"creator_actor"`
	Revision  int    `json:"revision"`

	Supervisor          SignatureBlock `json:"supervisor"`
	OperationsManager   SignatureBlock `json:"operations_manager"`
	BusinessDevelopment SignatureBlock `json:"business_development"`
	Procurement         SignatureBlock `json:"procurement"`
	GeneralManager      SignatureBlock `json:"general_manager"`

	Rejection *Rejection `json:"rejection,omitempty"`

	FormBody json.RawMessage `json:"form_body,omitempty"`

	Audit []AuditEntry `json:"audit,omitempty"`
}

// Block returns the signature block for a chain role, or nil.
func (s *Submission) Block(role Role) *SignatureBlock {
	switch role {
	case RoleSupervisor:
		return &s.Supervisor
	case RoleOperationsManager:
		return &s.OperationsManager
	case RoleBusinessDevelopment:
		return &s.BusinessDevelopment
	case RoleProcurement:
		return &s.Procurement
	case RoleGeneralManager:
		return &s.GeneralManager
	default:
		return nil
	}
}

// IsSigned reports whether the role's block is signed
func (s *Submission) IsSigned(role Role) bool {
	b := s.Block(role)
	return b != nil && b.Signed()
}

// View returns the permission-relevant projection of the submission.
func (s *Submission) View() SignatureView {
	return SignatureView{
		Status:              s.Status,
		Supervisor:          s.Supervisor.Signed(),
		OperationsManager:   s.OperationsManager.Signed(),
		BusinessDevelopment: s.BusinessDevelopment.Signed(),
		Procurement:         s.Procurement.Signed(),
		GeneralManager:      s.GeneralManager.Signed(),
	}
}

// SignedBy reports whether the actor appears as a signer in the audit trail.
func (s *Submission) SignedBy(actorID string) bool {
	for _, e := range s.Audit {
		if e.Actor == actorID && e.Action == ActionApprove {
			return true
		}
	}
	for _, role := range ChainRoles {
		if b := s.Block(role); b.Signed() && b.Actor == actorID {
			return true
		}
	}
	return false
}

// Signers returns the distinct actors that have ever signed the submission.
func (s *Submission) Signers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, e := range s.Audit {
		if e.Action == ActionApprove {
			add(e.Actor)
		}
	}
	for _, role := range ChainRoles {
		if b := s.Block(role); b.Signed() {
			add(b.Actor)
		}
	}
	return out
}

// Clone returns a deep copy
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	cp := *s
	for _, role := range ChainRoles {
		b := cp.Block(role)
		if b.SignedAt != nil {
			ts := *b.SignedAt
			b.SignedAt = &ts
		}
	}
	if s.Rejection != nil {
		r := *s.Rejection
		cp.Rejection = &r
	}
	if s.FormBody != nil {
		cp.FormBody = append(json.RawMessage(nil), s.FormBody...)
	}
	if s.Audit != nil {
		cp.Audit = append([]AuditEntry(nil), s.Audit...)
	}
	return &cp
}

// Validate checks the signing, join and rejection invariants
func (s *Submission) Validate() error {
	return checkInvariants(s)
}
