package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// HistoryRepository handles claim approval history persistence
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an approval action to a claim's history
func (r *HistoryRepository) Create(tx *sql.Tx, action *models.ApprovalAction) error {
	query := `
		INSERT INTO claim_history (
			claim_id, actor_id, level, action, remarks, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error

	if tx != nil {
		result, err = tx.Exec(query,
			action.ClaimID,
			action.ActorID,
			action.Level,
			action.Action,
			action.Remarks,
			action.Timestamp,
		)
	} else {
		result, err = r.db.Exec(query,
			action.ClaimID,
			action.ActorID,
			action.Level,
			action.Action,
			action.Remarks,
			action.Timestamp,
		)
	}

	if err != nil {
		r.logger.Error("Failed to create history entry",
			zap.String("claim_id", action.ClaimID),
			zap.Error(err))
		return fmt.Errorf("failed to create history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	action.ID = id
	return nil
}

// ListByClaim returns a claim's approval history in action order
func (r *HistoryRepository) ListByClaim(claimID string) ([]models.ApprovalAction, error) {
	rows, err := r.db.Query(`
		SELECT id, claim_id, actor_id, level, action, remarks, timestamp
		FROM claim_history
		WHERE claim_id = ?
		ORDER BY id ASC
	`, claimID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var actions []models.ApprovalAction
	for rows.Next() {
		var a models.ApprovalAction
		if err := rows.Scan(&a.ID, &a.ClaimID, &a.ActorID, &a.Level, &a.Action, &a.Remarks, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
