// Package approval manages a submitted claim's progression through its
// configured approval chain: forward-only transitions, actor
// authorization, terminal rejection and automatic escalation past
// inactive approvers.
package approval

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/repository"
	"github.com/fieldtrack/trip-reimbursement/pkg/database"
)

// Notifier is told when a claim lands in an approver's queue. Delivery
// is best-effort; implementations log their own failures and never
// break the workflow.
type Notifier interface {
	NotifyPending(claim *models.Claim, approverID string, escalated bool)
}

// Engine drives the claim approval state machine
type Engine struct {
	db        *database.DB
	claims    *repository.ClaimRepository
	history   *repository.HistoryRepository
	employees directory.EmployeeDirectory
	notifier  Notifier
	logger    *zap.Logger
}

// NewEngine creates a new approval engine
func NewEngine(
	db *database.DB,
	claims *repository.ClaimRepository,
	history *repository.HistoryRepository,
	employees directory.EmployeeDirectory,
	notifier Notifier,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:        db,
		claims:    claims,
		history:   history,
		employees: employees,
		notifier:  notifier,
		logger:    logger,
	}
}

// validateChain enforces the chain shape: 1 to 3 levels, L1 present,
// levels unique and within range, every approver named.
func validateChain(chain []models.ChainLevel) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: no approvers configured", ErrInvalidChain)
	}
	if len(chain) > 3 {
		return fmt.Errorf("%w: more than 3 levels", ErrInvalidChain)
	}
	seen := make(map[int]bool, len(chain))
	hasL1 := false
	for _, cl := range chain {
		if cl.Level < 1 || cl.Level > 3 {
			return fmt.Errorf("%w: level %d out of range", ErrInvalidChain, cl.Level)
		}
		if seen[cl.Level] {
			return fmt.Errorf("%w: duplicate level %d", ErrInvalidChain, cl.Level)
		}
		seen[cl.Level] = true
		if strings.TrimSpace(cl.ApproverID) == "" {
			return fmt.Errorf("%w: level %d has no approver", ErrInvalidChain, cl.Level)
		}
		if cl.Level == 1 {
			hasL1 = true
		}
	}
	if !hasL1 {
		return fmt.Errorf("%w: L1 approver is required", ErrInvalidChain)
	}
	return nil
}

// Submit creates a claim. The employee's configured approval chain is
// snapshotted onto the claim; later directory changes never rewrite it.
// The claim starts at PENDING_L1 and is escalated immediately if the L1
// approver is already inactive.
func (e *Engine) Submit(employeeID, claimType string, amount decimal.Decimal, description string) (*models.Claim, error) {
	emp, err := e.employees.Employee(employeeID)
	if err != nil {
		return nil, err
	}
	if err := validateChain(emp.Chain); err != nil {
		return nil, err
	}

	chain := make([]models.ChainLevel, len(emp.Chain))
	copy(chain, emp.Chain)

	claim := &models.Claim{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		ClaimType:   claimType,
		Amount:      amount.Round(2),
		Description: description,
		SubmittedAt: time.Now().UTC(),
		Status:      models.ClaimPendingL1,
		Chain:       chain,
	}

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.claims.Create(tx, claim); err != nil {
			return err
		}
		return e.history.Create(tx, &models.ApprovalAction{
			ClaimID:   claim.ID,
			ActorID:   employeeID,
			Level:     0,
			Action:    models.ActionSubmit,
			Timestamp: claim.SubmittedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Claim submitted",
		zap.String("claim_id", claim.ID),
		zap.String("employee_id", employeeID),
		zap.String("amount", claim.Amount.StringFixed(2)))

	// Escalate notifies each level it advances to; only notify here when
	// the claim stayed at L1.
	before := claim.Status
	if err := e.Escalate(claim); err != nil {
		e.logger.Error("Escalation check after submit failed",
			zap.String("claim_id", claim.ID), zap.Error(err))
	}
	if claim.Status == before {
		e.notifyCurrent(claim, false)
	}
	return claim, nil
}

// Approve advances a claim one level, or to APPROVED when the actor's
// level is the last configured one. The status update is conditional on
// the status the actor saw, so of two concurrent approvals exactly one
// succeeds and the other gets ErrClaimConflict.
func (e *Engine) Approve(claimID, actorID, remarks string) (*models.Claim, error) {
	claim, err := e.claims.GetByID(claimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	if claim.Status.Terminal() {
		return nil, ErrClaimConflict
	}

	level := claim.Status.PendingLevel()
	approver, ok := claim.ApproverForLevel(level)
	if !ok {
		// A validated chain always covers its pending level
		return nil, fmt.Errorf("claim %s: no approver configured for level %d", claimID, level)
	}
	if actorID != approver {
		return nil, ErrUnauthorized
	}

	next := models.ClaimApproved
	if nextLevel, ok := claim.NextLevelAfter(level); ok {
		next, _ = models.PendingStatusForLevel(nextLevel)
	}

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.claims.UpdateStatusIf(tx, claimID, claim.Status, next); err != nil {
			return err
		}
		return e.history.Create(tx, &models.ApprovalAction{
			ClaimID:   claimID,
			ActorID:   actorID,
			Level:     level,
			Action:    models.ActionApprove,
			Remarks:   remarks,
			Timestamp: time.Now().UTC(),
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrClaimConflict
		}
		return nil, err
	}

	e.logger.Info("Claim approved at level",
		zap.String("claim_id", claimID),
		zap.String("actor_id", actorID),
		zap.Int("level", level),
		zap.String("new_status", string(next)))

	claim.Status = next
	if !next.Terminal() {
		before := claim.Status
		if err := e.Escalate(claim); err != nil {
			e.logger.Error("Escalation check after approve failed",
				zap.String("claim_id", claimID), zap.Error(err))
		}
		if claim.Status == before {
			e.notifyCurrent(claim, false)
		}
	}
	return claim, nil
}

// Reject moves a claim to terminal REJECTED from any pending level.
// Rejection is final: the chain never resumes at a later level.
func (e *Engine) Reject(claimID, actorID, remarks string) (*models.Claim, error) {
	if strings.TrimSpace(remarks) == "" {
		return nil, ErrRemarksRequired
	}

	claim, err := e.claims.GetByID(claimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	if claim.Status.Terminal() {
		return nil, ErrClaimConflict
	}

	level := claim.Status.PendingLevel()
	approver, ok := claim.ApproverForLevel(level)
	if !ok {
		return nil, fmt.Errorf("claim %s: no approver configured for level %d", claimID, level)
	}
	if actorID != approver {
		return nil, ErrUnauthorized
	}

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.claims.UpdateStatusIf(tx, claimID, claim.Status, models.ClaimRejected); err != nil {
			return err
		}
		return e.history.Create(tx, &models.ApprovalAction{
			ClaimID:   claimID,
			ActorID:   actorID,
			Level:     level,
			Action:    models.ActionReject,
			Remarks:   remarks,
			Timestamp: time.Now().UTC(),
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrClaimConflict
		}
		return nil, err
	}

	e.logger.Info("Claim rejected",
		zap.String("claim_id", claimID),
		zap.String("actor_id", actorID),
		zap.Int("level", level))

	claim.Status = models.ClaimRejected
	return claim, nil
}

// Escalate advances the claim past pending levels whose approver is no
// longer active in the directory. Each skipped level gets an ESCALATE
// history entry, distinct from a human approval. When the last
// configured level's approver is inactive the claim stays where it is
// and is surfaced by StalledClaims; auto-approving without any human
// decision is deliberately not done.
func (e *Engine) Escalate(claim *models.Claim) error {
	for !claim.Status.Terminal() {
		level := claim.Status.PendingLevel()
		approver, ok := claim.ApproverForLevel(level)
		if !ok {
			return fmt.Errorf("claim %s: no approver configured for level %d", claim.ID, level)
		}

		active, err := e.employees.ApproverActive(approver)
		if err != nil {
			return err
		}
		if active {
			return nil
		}

		nextLevel, ok := claim.NextLevelAfter(level)
		if !ok {
			e.logger.Warn("Claim stalled: last-level approver inactive",
				zap.String("claim_id", claim.ID),
				zap.String("approver_id", approver),
				zap.Int("level", level))
			return nil
		}
		next, _ := models.PendingStatusForLevel(nextLevel)

		err = e.db.WithTransaction(func(tx *sql.Tx) error {
			if err := e.claims.UpdateStatusIf(tx, claim.ID, claim.Status, next); err != nil {
				return err
			}
			return e.history.Create(tx, &models.ApprovalAction{
				ClaimID:   claim.ID,
				Level:     level,
				Action:    models.ActionEscalate,
				Remarks:   fmt.Sprintf("approver %s inactive, escalated to level %d", approver, nextLevel),
				Timestamp: time.Now().UTC(),
			})
		})
		if err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				// Someone acted on the claim meanwhile; their view wins
				return nil
			}
			return err
		}

		e.logger.Info("Claim escalated past inactive approver",
			zap.String("claim_id", claim.ID),
			zap.String("approver_id", approver),
			zap.Int("from_level", level),
			zap.Int("to_level", nextLevel))

		claim.Status = next
		e.notifyCurrent(claim, true)
	}
	return nil
}

func (e *Engine) notifyCurrent(claim *models.Claim, escalated bool) {
	if e.notifier == nil || claim.Status.Terminal() {
		return
	}
	if approver, ok := claim.ApproverForLevel(claim.Status.PendingLevel()); ok {
		e.notifier.NotifyPending(claim, approver, escalated)
	}
}

// ClaimDetail returns a claim with its approval history
func (e *Engine) ClaimDetail(claimID string) (*models.Claim, []models.ApprovalAction, error) {
	claim, err := e.claims.GetByID(claimID)
	if err != nil {
		return nil, nil, err
	}
	if claim == nil {
		return nil, nil, ErrClaimNotFound
	}
	history, err := e.history.ListByClaim(claimID)
	if err != nil {
		return nil, nil, err
	}
	return claim, history, nil
}

// PendingForApprover lists claims currently waiting on the given actor
func (e *Engine) PendingForApprover(actorID string) ([]models.Claim, error) {
	return e.claims.ListPendingForApprover(actorID)
}

// StalledClaims lists pending claims whose current approver is inactive
// with no further level to escalate to. These need manual intervention
// (a chain fix in the directory).
func (e *Engine) StalledClaims() ([]models.Claim, error) {
	pending, err := e.claims.ListPending()
	if err != nil {
		return nil, err
	}

	var stalled []models.Claim
	for _, claim := range pending {
		level := claim.Status.PendingLevel()
		approver, ok := claim.ApproverForLevel(level)
		if !ok {
			continue
		}
		active, err := e.employees.ApproverActive(approver)
		if err != nil {
			return nil, err
		}
		if active {
			continue
		}
		if _, ok := claim.NextLevelAfter(level); !ok {
			stalled = append(stalled, claim)
		}
	}
	return stalled, nil
}

// EscalatePending runs the escalation check over every pending claim.
// Called by the background poller to catch approvers who resigned while
// claims sat in their queue.
func (e *Engine) EscalatePending() (int, error) {
	pending, err := e.claims.ListPending()
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range pending {
		before := pending[i].Status
		if err := e.Escalate(&pending[i]); err != nil {
			e.logger.Error("Escalation failed",
				zap.String("claim_id", pending[i].ID), zap.Error(err))
			continue
		}
		if pending[i].Status != before {
			escalated++
		}
	}
	return escalated, nil
}
