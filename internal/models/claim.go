package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimStatus is the closed set of claim workflow states. New statuses
// must be added here and handled exhaustively by every consumer.
type ClaimStatus string

const (
	ClaimPendingL1 ClaimStatus = "PENDING_L1"
	ClaimPendingL2 ClaimStatus = "PENDING_L2"
	ClaimPendingL3 ClaimStatus = "PENDING_L3"
	ClaimApproved  ClaimStatus = "APPROVED"
	ClaimRejected  ClaimStatus = "REJECTED"
)

// Valid reports whether s is a known claim status
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimPendingL1, ClaimPendingL2, ClaimPendingL3, ClaimApproved, ClaimRejected:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions
func (s ClaimStatus) Terminal() bool {
	return s == ClaimApproved || s == ClaimRejected
}

// PendingLevel returns the approval level a pending status waits on,
// or 0 for terminal statuses.
func (s ClaimStatus) PendingLevel() int {
	switch s {
	case ClaimPendingL1:
		return 1
	case ClaimPendingL2:
		return 2
	case ClaimPendingL3:
		return 3
	}
	return 0
}

// PendingStatusForLevel maps a chain level (1..3) to its pending status
func PendingStatusForLevel(level int) (ClaimStatus, bool) {
	switch level {
	case 1:
		return ClaimPendingL1, true
	case 2:
		return ClaimPendingL2, true
	case 3:
		return ClaimPendingL3, true
	}
	return "", false
}

// Claim type constants
const (
	ClaimTypeTravel        = "TRAVEL"
	ClaimTypeFuel          = "FUEL"
	ClaimTypeFood          = "FOOD"
	ClaimTypeAccommodation = "ACCOMMODATION"
	ClaimTypeOther         = "OTHER"
)

// ChainLevel is one step of an approval chain: the approver responsible
// for the given level. Chains are ordered, 1 to 3 levels, level 1 required.
type ChainLevel struct {
	Level      int    `json:"level"`
	ApproverID string `json:"approver_id"`
}

// Claim represents a submitted expense claim moving through its approval
// chain. The chain is snapshotted at submission time and never re-read
// from the employee directory afterwards.
type Claim struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employee_id"`
	ClaimType   string          `json:"claim_type"`
	Amount      decimal.Decimal `json:"amount"` // rounded to 2 places
	Description string          `json:"description"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Status      ClaimStatus     `json:"status"`
	Chain       []ChainLevel    `json:"chain"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ApproverForLevel returns the approver configured at the given level,
// or false when the chain does not reach that level.
func (c *Claim) ApproverForLevel(level int) (string, bool) {
	for _, cl := range c.Chain {
		if cl.Level == level {
			return cl.ApproverID, true
		}
	}
	return "", false
}

// NextLevelAfter returns the next configured chain level strictly after
// the given one, or false when none remains.
func (c *Claim) NextLevelAfter(level int) (int, bool) {
	best := 0
	for _, cl := range c.Chain {
		if cl.Level > level && (best == 0 || cl.Level < best) {
			best = cl.Level
		}
	}
	return best, best != 0
}

// Approval action type constants
const (
	ActionSubmit   = "SUBMIT"
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionEscalate = "ESCALATE" // automatic skip of an inactive approver, not a human decision
)

// ApprovalAction is one entry of a claim's approval history
type ApprovalAction struct {
	ID        int64     `json:"id"`
	ClaimID   string    `json:"claim_id"`
	ActorID   string    `json:"actor_id,omitempty"` // empty for system actions
	Level     int       `json:"level"`
	Action    string    `json:"action"`
	Remarks   string    `json:"remarks,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
