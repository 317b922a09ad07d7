package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// TripRepository handles trip session, sample and visit persistence
type TripRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB, logger *zap.Logger) *TripRepository {
	return &TripRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TripRepository) exec(tx *sql.Tx, query string, args ...interface{}) (sql.Result, error) {
	if tx != nil {
		return tx.Exec(query, args...)
	}
	return r.db.Exec(query, args...)
}

// CreateSession inserts a new ACTIVE session. The partial unique index
// on (employee_id) WHERE status = 'ACTIVE' makes the check-then-create
// race safe: the loser gets ErrDuplicateActiveSession.
func (r *TripRepository) CreateSession(tx *sql.Tx, session *models.TripSession) error {
	query := `
		INSERT INTO trip_sessions (
			id, employee_id, status, start_time, start_lat, start_lon, distance_km
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.exec(tx, query,
		session.ID,
		session.EmployeeID,
		session.Status,
		session.StartTime,
		session.StartPoint.Latitude,
		session.StartPoint.Longitude,
		session.DistanceKm,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateActiveSession
		}
		r.logger.Error("Failed to create trip session",
			zap.String("employee_id", session.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to create trip session: %w", err)
	}
	return nil
}

// GetSessionByID retrieves a session by ID, or nil when absent
func (r *TripRepository) GetSessionByID(id string) (*models.TripSession, error) {
	return r.getSession(`
		SELECT id, employee_id, status, start_time, start_lat, start_lon,
			end_time, end_lat, end_lon, distance_km, total_expense,
			created_at, updated_at
		FROM trip_sessions
		WHERE id = ?
	`, id)
}

// GetActiveSessionByEmployee retrieves the employee's ACTIVE session, or
// nil when the employee has no trip in progress.
func (r *TripRepository) GetActiveSessionByEmployee(employeeID string) (*models.TripSession, error) {
	return r.getSession(`
		SELECT id, employee_id, status, start_time, start_lat, start_lon,
			end_time, end_lat, end_lon, distance_km, total_expense,
			created_at, updated_at
		FROM trip_sessions
		WHERE employee_id = ? AND status = ?
	`, employeeID, models.TripStatusActive)
}

func (r *TripRepository) getSession(query string, args ...interface{}) (*models.TripSession, error) {
	var (
		session      models.TripSession
		endTime      sql.NullTime
		endLat       sql.NullFloat64
		endLon       sql.NullFloat64
		totalExpense sql.NullString
	)

	err := r.db.QueryRow(query, args...).Scan(
		&session.ID,
		&session.EmployeeID,
		&session.Status,
		&session.StartTime,
		&session.StartPoint.Latitude,
		&session.StartPoint.Longitude,
		&endTime,
		&endLat,
		&endLon,
		&session.DistanceKm,
		&totalExpense,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get trip session", zap.Error(err))
		return nil, fmt.Errorf("failed to get trip session: %w", err)
	}

	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	if endLat.Valid && endLon.Valid {
		session.EndPoint = &models.GeoPoint{Latitude: endLat.Float64, Longitude: endLon.Float64}
	}
	if totalExpense.Valid {
		d, err := decimal.NewFromString(totalExpense.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt total_expense on session %s: %w", session.ID, err)
		}
		session.TotalExpense = &d
	}
	return &session, nil
}

// AppendSample stores an accepted sample and advances the session's
// cumulative distance in one statement pair. The status predicate on the
// UPDATE enforces immutability of completed sessions.
func (r *TripRepository) AppendSample(tx *sql.Tx, sessionID string, sample models.LocationSample, newDistanceKm float64) error {
	var speed interface{}
	if sample.SpeedMPS != nil {
		speed = *sample.SpeedMPS
	}

	_, err := r.exec(tx, `
		INSERT INTO trip_samples (
			session_id, latitude, longitude, timestamp, accuracy_m, speed_mps, quality
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionID, sample.Latitude, sample.Longitude, sample.Timestamp, sample.AccuracyM, speed, string(sample.Quality))
	if err != nil {
		r.logger.Error("Failed to append sample",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("failed to append sample: %w", err)
	}

	result, err := r.exec(tx, `
		UPDATE trip_sessions
		SET distance_km = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, newDistanceKm, sessionID, models.TripStatusActive)
	if err != nil {
		return fmt.Errorf("failed to update session distance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// CreateVisit stores a dealer visit for an active session
func (r *TripRepository) CreateVisit(tx *sql.Tx, visit *models.DealerVisit) error {
	_, err := r.exec(tx, `
		INSERT INTO dealer_visits (
			id, session_id, latitude, longitude, timestamp, dealer_name, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, visit.ID, visit.SessionID, visit.Point.Latitude, visit.Point.Longitude,
		visit.Timestamp, visit.DealerName, visit.Notes)
	if err != nil {
		r.logger.Error("Failed to create dealer visit",
			zap.String("session_id", visit.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to create dealer visit: %w", err)
	}
	return nil
}

// CompleteSession freezes an active session: final distance, expense,
// end time and location, status COMPLETED. Returns ErrStaleStatus when
// the session is no longer ACTIVE.
func (r *TripRepository) CompleteSession(tx *sql.Tx, sessionID string, endTime time.Time, endPoint models.GeoPoint, distanceKm float64, totalExpense decimal.Decimal) error {
	result, err := r.exec(tx, `
		UPDATE trip_sessions
		SET status = ?, end_time = ?, end_lat = ?, end_lon = ?,
			distance_km = ?, total_expense = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, models.TripStatusCompleted, endTime, endPoint.Latitude, endPoint.Longitude,
		distanceKm, totalExpense.StringFixed(2), sessionID, models.TripStatusActive)
	if err != nil {
		r.logger.Error("Failed to complete trip session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("failed to complete trip session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ListSamples returns a session's accepted samples in insertion order
func (r *TripRepository) ListSamples(sessionID string) ([]models.LocationSample, error) {
	rows, err := r.db.Query(`
		SELECT latitude, longitude, timestamp, accuracy_m, speed_mps, quality
		FROM trip_samples
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []models.LocationSample
	for rows.Next() {
		var (
			s       models.LocationSample
			speed   sql.NullFloat64
			quality string
		)
		if err := rows.Scan(&s.Latitude, &s.Longitude, &s.Timestamp, &s.AccuracyM, &speed, &quality); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if speed.Valid {
			v := speed.Float64
			s.SpeedMPS = &v
		}
		s.Quality = models.SampleQuality(quality)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// LastSample returns the most recently accepted sample of a session, or
// nil when none has been recorded yet.
func (r *TripRepository) LastSample(sessionID string) (*models.LocationSample, error) {
	var (
		s       models.LocationSample
		speed   sql.NullFloat64
		quality string
	)
	err := r.db.QueryRow(`
		SELECT latitude, longitude, timestamp, accuracy_m, speed_mps, quality
		FROM trip_samples
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, sessionID).Scan(&s.Latitude, &s.Longitude, &s.Timestamp, &s.AccuracyM, &speed, &quality)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sample: %w", err)
	}
	if speed.Valid {
		v := speed.Float64
		s.SpeedMPS = &v
	}
	s.Quality = models.SampleQuality(quality)
	return &s, nil
}

// ListVisits returns a session's dealer visits in insertion order
func (r *TripRepository) ListVisits(sessionID string) ([]models.DealerVisit, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, latitude, longitude, timestamp, dealer_name, notes, created_at
		FROM dealer_visits
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var visits []models.DealerVisit
	for rows.Next() {
		var v models.DealerVisit
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Point.Latitude, &v.Point.Longitude,
			&v.Timestamp, &v.DealerName, &v.Notes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// CountVisits returns the number of dealer visits recorded for a session
func (r *TripRepository) CountVisits(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM dealer_visits WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return n, nil
}

// ListCompletedInRange returns an employee's completed sessions whose
// start time falls in [from, to], oldest first.
func (r *TripRepository) ListCompletedInRange(employeeID string, from, to time.Time) ([]models.TripSession, error) {
	rows, err := r.db.Query(`
		SELECT id, employee_id, status, start_time, start_lat, start_lon,
			end_time, end_lat, end_lon, distance_km, total_expense,
			created_at, updated_at
		FROM trip_sessions
		WHERE employee_id = ? AND status = ? AND start_time >= ? AND start_time <= ?
		ORDER BY start_time ASC
	`, employeeID, models.TripStatusCompleted, from, to)
	if err != nil {
		r.logger.Error("Failed to list completed sessions",
			zap.String("employee_id", employeeID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list completed sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.TripSession
	for rows.Next() {
		var (
			session      models.TripSession
			endTime      sql.NullTime
			endLat       sql.NullFloat64
			endLon       sql.NullFloat64
			totalExpense sql.NullString
		)
		if err := rows.Scan(
			&session.ID,
			&session.EmployeeID,
			&session.Status,
			&session.StartTime,
			&session.StartPoint.Latitude,
			&session.StartPoint.Longitude,
			&endTime,
			&endLat,
			&endLon,
			&session.DistanceKm,
			&totalExpense,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if endTime.Valid {
			session.EndTime = &endTime.Time
		}
		if endLat.Valid && endLon.Valid {
			session.EndPoint = &models.GeoPoint{Latitude: endLat.Float64, Longitude: endLon.Float64}
		}
		if totalExpense.Valid {
			d, err := decimal.NewFromString(totalExpense.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt total_expense on session %s: %w", session.ID, err)
			}
			session.TotalExpense = &d
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
