package repository

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// ClaimRepository handles claim and approval-chain persistence
type ClaimRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sql.DB, logger *zap.Logger) *ClaimRepository {
	return &ClaimRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ClaimRepository) exec(tx *sql.Tx, query string, args ...interface{}) (sql.Result, error) {
	if tx != nil {
		return tx.Exec(query, args...)
	}
	return r.db.Exec(query, args...)
}

// Create inserts a claim together with its snapshotted approval chain
func (r *ClaimRepository) Create(tx *sql.Tx, claim *models.Claim) error {
	_, err := r.exec(tx, `
		INSERT INTO claims (
			id, employee_id, claim_type, amount, description, submitted_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, claim.ID, claim.EmployeeID, claim.ClaimType, claim.Amount.StringFixed(2),
		claim.Description, claim.SubmittedAt, string(claim.Status))
	if err != nil {
		r.logger.Error("Failed to create claim",
			zap.String("employee_id", claim.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to create claim: %w", err)
	}

	for _, level := range claim.Chain {
		_, err := r.exec(tx, `
			INSERT INTO claim_chain_levels (claim_id, level, approver_id)
			VALUES (?, ?, ?)
		`, claim.ID, level.Level, level.ApproverID)
		if err != nil {
			return fmt.Errorf("failed to store chain level %d: %w", level.Level, err)
		}
	}
	return nil
}

// GetByID retrieves a claim with its approval chain, or nil when absent
func (r *ClaimRepository) GetByID(id string) (*models.Claim, error) {
	var (
		claim  models.Claim
		amount string
		status string
	)
	err := r.db.QueryRow(`
		SELECT id, employee_id, claim_type, amount, description, submitted_at,
			status, created_at, updated_at
		FROM claims
		WHERE id = ?
	`, id).Scan(
		&claim.ID,
		&claim.EmployeeID,
		&claim.ClaimType,
		&amount,
		&claim.Description,
		&claim.SubmittedAt,
		&status,
		&claim.CreatedAt,
		&claim.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	claim.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount on claim %s: %w", id, err)
	}
	claim.Status = models.ClaimStatus(status)

	claim.Chain, err = r.chainFor(id)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *ClaimRepository) chainFor(claimID string) ([]models.ChainLevel, error) {
	rows, err := r.db.Query(`
		SELECT level, approver_id
		FROM claim_chain_levels
		WHERE claim_id = ?
		ORDER BY level ASC
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval chain: %w", err)
	}
	defer rows.Close()

	var chain []models.ChainLevel
	for rows.Next() {
		var cl models.ChainLevel
		if err := rows.Scan(&cl.Level, &cl.ApproverID); err != nil {
			return nil, fmt.Errorf("failed to scan chain level: %w", err)
		}
		chain = append(chain, cl)
	}
	return chain, rows.Err()
}

// UpdateStatusIf performs a compare-and-swap status transition: the
// update applies only when the claim still has the status the caller
// read. A zero-row update reports ErrStaleStatus so a concurrent
// approver's lost race surfaces as a conflict, never a double advance.
func (r *ClaimRepository) UpdateStatusIf(tx *sql.Tx, claimID string, from, to models.ClaimStatus) error {
	result, err := r.exec(tx, `
		UPDATE claims
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, string(to), claimID, string(from))
	if err != nil {
		r.logger.Error("Failed to update claim status",
			zap.String("claim_id", claimID),
			zap.Error(err))
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ListPendingForApprover returns claims currently waiting on the given
// actor: the claim's pending level must name them in its chain.
func (r *ClaimRepository) ListPendingForApprover(approverID string) ([]models.Claim, error) {
	return r.listClaims(`
		SELECT c.id, c.employee_id, c.claim_type, c.amount, c.description,
			c.submitted_at, c.status, c.created_at, c.updated_at
		FROM claims c
		JOIN claim_chain_levels l ON l.claim_id = c.id
		WHERE l.approver_id = ?
			AND c.status = 'PENDING_L' || CAST(l.level AS TEXT)
		ORDER BY c.submitted_at ASC
	`, approverID)
}

// ListPending returns all claims in a pending status, oldest first.
// Used by the escalation poller.
func (r *ClaimRepository) ListPending() ([]models.Claim, error) {
	return r.listClaims(`
		SELECT id, employee_id, claim_type, amount, description,
			submitted_at, status, created_at, updated_at
		FROM claims
		WHERE status IN (?, ?, ?)
		ORDER BY submitted_at ASC
	`, string(models.ClaimPendingL1), string(models.ClaimPendingL2), string(models.ClaimPendingL3))
}

func (r *ClaimRepository) listClaims(query string, args ...interface{}) ([]models.Claim, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list claims", zap.Error(err))
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []models.Claim
	for rows.Next() {
		var (
			claim  models.Claim
			amount string
			status string
		)
		if err := rows.Scan(
			&claim.ID,
			&claim.EmployeeID,
			&claim.ClaimType,
			&amount,
			&claim.Description,
			&claim.SubmittedAt,
			&status,
			&claim.CreatedAt,
			&claim.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claim.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount on claim %s: %w", claim.ID, err)
		}
		claim.Status = models.ClaimStatus(status)
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range claims {
		claims[i].Chain, err = r.chainFor(claims[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return claims, nil
}
