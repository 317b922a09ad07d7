package repository

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// DirectoryRepository reads the employee/grade directory and rate
// tables. This data is owned by external admin tooling; the core only
// queries it.
type DirectoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sql.DB, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// GetEmployee retrieves an employee with their configured approval
// chain, or nil when unknown.
func (r *DirectoryRepository) GetEmployee(id string) (*models.Employee, error) {
	var emp models.Employee
	err := r.db.QueryRow(`
		SELECT id, name, grade_key, active
		FROM employees
		WHERE id = ?
	`, id).Scan(&emp.ID, &emp.Name, &emp.GradeKey, &emp.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT level, approver_id
		FROM approval_levels
		WHERE employee_id = ?
		ORDER BY level ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval chain: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cl models.ChainLevel
		if err := rows.Scan(&cl.Level, &cl.ApproverID); err != nil {
			return nil, fmt.Errorf("failed to scan chain level: %w", err)
		}
		emp.Chain = append(emp.Chain, cl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &emp, nil
}

// ApproverActive reports whether the given approver is still active in
// the directory. Unknown approvers count as inactive so a stale chain
// entry escalates instead of stalling a claim forever.
func (r *DirectoryRepository) ApproverActive(id string) (bool, error) {
	var active bool
	err := r.db.QueryRow(`SELECT active FROM employees WHERE id = ?`, id).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to check approver", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to check approver: %w", err)
	}
	return active, nil
}

// GetRate retrieves the rate entry for a grade key, or nil when the
// grade has no configured rate.
func (r *DirectoryRepository) GetRate(gradeKey string) (*models.RateEntry, error) {
	var (
		entry     models.RateEntry
		perKm     string
		allowance string
	)
	err := r.db.QueryRow(`
		SELECT grade_key, per_km_rate, daily_allowance
		FROM rate_entries
		WHERE grade_key = ?
	`, gradeKey).Scan(&entry.GradeKey, &perKm, &allowance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get rate entry", zap.String("grade_key", gradeKey), zap.Error(err))
		return nil, fmt.Errorf("failed to get rate entry: %w", err)
	}

	if entry.PerKmRate, err = decimal.NewFromString(perKm); err != nil {
		return nil, fmt.Errorf("corrupt per_km_rate for grade %s: %w", gradeKey, err)
	}
	if entry.DailyAllowance, err = decimal.NewFromString(allowance); err != nil {
		return nil, fmt.Errorf("corrupt daily_allowance for grade %s: %w", gradeKey, err)
	}
	return &entry, nil
}

// GetPolicy retrieves the grade policy record, or nil when unconfigured
func (r *DirectoryRepository) GetPolicy(gradeKey string) (*models.GradePolicy, error) {
	var (
		policy  models.GradePolicy
		food    string
		town    string
		capital string
		metro   string
		hotel   string
		travel  string
	)
	err := r.db.QueryRow(`
		SELECT grade_key, vehicle_type, km_per_litre,
			food_allowance, town_allowance, capital_allowance, metro_allowance,
			hotel_ceiling, travel_ceiling, receipt_required
		FROM grade_policies
		WHERE grade_key = ?
	`, gradeKey).Scan(
		&policy.GradeKey,
		&policy.VehicleType,
		&policy.KmPerLitre,
		&food,
		&town,
		&capital,
		&metro,
		&hotel,
		&travel,
		&policy.ReceiptRequired,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get grade policy", zap.String("grade_key", gradeKey), zap.Error(err))
		return nil, fmt.Errorf("failed to get grade policy: %w", err)
	}

	policy.Allowances = make(map[models.DayType]decimal.Decimal, 4)
	for dayType, raw := range map[models.DayType]string{
		models.DayTypeFood:    food,
		models.DayTypeTown:    town,
		models.DayTypeCapital: capital,
		models.DayTypeMetro:   metro,
	} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt %s allowance for grade %s: %w", dayType, gradeKey, err)
		}
		policy.Allowances[dayType] = d
	}
	if policy.HotelCeiling, err = decimal.NewFromString(hotel); err != nil {
		return nil, fmt.Errorf("corrupt hotel_ceiling for grade %s: %w", gradeKey, err)
	}
	if policy.TravelCeiling, err = decimal.NewFromString(travel); err != nil {
		return nil, fmt.Errorf("corrupt travel_ceiling for grade %s: %w", gradeKey, err)
	}
	return &policy, nil
}
