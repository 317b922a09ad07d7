// Package trip owns the trip session lifecycle: starting a trip,
// folding location samples into cumulative distance, recording dealer
// visits and finalizing the expense at completion.
package trip

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	"github.com/fieldtrack/trip-reimbursement/internal/distance"
	"github.com/fieldtrack/trip-reimbursement/internal/expense"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/repository"
	"github.com/fieldtrack/trip-reimbursement/pkg/database"
)

// Service is the trip session state machine. Sample and visit mutations
// are serialized per session: the cumulative distance update is a
// read-modify-write that must never see concurrent writers. Sessions of
// distinct employees proceed fully in parallel.
type Service struct {
	db           *database.DB
	trips        *repository.TripRepository
	employees    directory.EmployeeDirectory
	rates        directory.RateSource
	minDistanceM float64
	logger       *zap.Logger

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// NewService creates a trip service. minDistanceM is the noise-filter
// threshold handed to the distance accumulator.
func NewService(
	db *database.DB,
	trips *repository.TripRepository,
	employees directory.EmployeeDirectory,
	rates directory.RateSource,
	minDistanceM float64,
	logger *zap.Logger,
) *Service {
	if minDistanceM <= 0 {
		minDistanceM = distance.DefaultMinDistanceM
	}
	return &Service{
		db:           db,
		trips:        trips,
		employees:    employees,
		rates:        rates,
		minDistanceM: minDistanceM,
		logger:       logger,
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockSession(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessionLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.sessionLocks[sessionID] = l
	}
	return l
}

func (s *Service) releaseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessionLocks, sessionID)
}

// StartTrip creates a new ACTIVE session for the employee. The friendly
// pre-check gives a clean error in the common case; the partial unique
// index on active sessions decides the race when two starts arrive
// concurrently, so exactly one succeeds.
func (s *Service) StartTrip(employeeID string, startPoint models.GeoPoint) (*models.TripSession, error) {
	if _, err := s.employees.Employee(employeeID); err != nil {
		return nil, err
	}

	existing, err := s.trips.GetActiveSessionByEmployee(employeeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: session %s", ErrAlreadyActive, existing.ID)
	}

	session := &models.TripSession{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Status:     models.TripStatusActive,
		StartTime:  time.Now().UTC(),
		StartPoint: startPoint,
	}

	if err := s.trips.CreateSession(nil, session); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveSession) {
			return nil, ErrAlreadyActive
		}
		return nil, err
	}

	s.logger.Info("Trip started",
		zap.String("session_id", session.ID),
		zap.String("employee_id", employeeID))
	return session, nil
}

// AddSampleResult reports what happened to an offered sample
type AddSampleResult struct {
	Accepted   bool                 `json:"accepted"`
	DistanceKm float64              `json:"distance_km"`
	Quality    models.SampleQuality `json:"quality,omitempty"`
}

// AddSample feeds a candidate location sample into an active session.
// Rejected candidates (below the noise threshold) leave the session
// untouched. The sample's quality flag rides along; degraded accuracy
// never changes the accept decision.
func (s *Service) AddSample(sessionID string, sample models.LocationSample) (*AddSampleResult, error) {
	l := s.lockSession(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.trips.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != models.TripStatusActive {
		return nil, ErrSessionNotActive
	}

	last, err := s.trips.LastSample(sessionID)
	if err != nil {
		return nil, err
	}

	decision := distance.Evaluate(last, sample, s.minDistanceM)
	if !decision.Accept {
		return &AddSampleResult{
			Accepted:   false,
			DistanceKm: session.DistanceKm,
			Quality:    sample.Quality,
		}, nil
	}

	newDistanceKm := session.DistanceKm + decision.IncrementM/1000

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.trips.AppendSample(tx, sessionID, sample, newDistanceKm)
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrSessionNotActive
		}
		return nil, err
	}

	return &AddSampleResult{
		Accepted:   true,
		DistanceKm: newDistanceKm,
		Quality:    sample.Quality,
	}, nil
}

// AddDealerVisit records a geolocated check-in on an active session.
// Visits never affect distance.
func (s *Service) AddDealerVisit(sessionID string, point models.GeoPoint, at time.Time, dealerName, notes string) (*models.DealerVisit, error) {
	l := s.lockSession(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.trips.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != models.TripStatusActive {
		return nil, ErrSessionNotActive
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	visit := &models.DealerVisit{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Point:      point,
		Timestamp:  at,
		DealerName: dealerName,
		Notes:      notes,
	}
	if err := s.trips.CreateVisit(nil, visit); err != nil {
		return nil, err
	}

	s.logger.Info("Dealer visit recorded",
		zap.String("session_id", sessionID),
		zap.String("dealer", dealerName))
	return visit, nil
}

// EndTrip freezes the session: cumulative distance becomes final, the
// expense calculator prices it against the employee's grade rate, and
// the session transitions to COMPLETED. After this call the session is
// immutable.
func (s *Service) EndTrip(sessionID string, endPoint models.GeoPoint) (*models.TripSession, error) {
	l := s.lockSession(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.trips.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != models.TripStatusActive {
		return nil, ErrSessionNotActive
	}

	emp, err := s.employees.Employee(session.EmployeeID)
	if err != nil {
		return nil, err
	}
	rate, usedDefault, err := s.rates.RateFor(emp.GradeKey)
	if err != nil {
		return nil, err
	}

	result := expense.Calculate(session.DistanceKm, rate, true, usedDefault)
	endTime := time.Now().UTC()

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.trips.CompleteSession(tx, sessionID, endTime, endPoint, session.DistanceKm, result.Amount)
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrSessionNotActive
		}
		return nil, err
	}
	s.releaseSession(sessionID)

	s.logger.Info("Trip completed",
		zap.String("session_id", sessionID),
		zap.Float64("distance_km", session.DistanceKm),
		zap.String("total_expense", result.Amount.StringFixed(2)),
		zap.Bool("used_default_rate", result.UsedDefaultRate))

	return s.trips.GetSessionByID(sessionID)
}

// ActiveSession returns the employee's in-progress session, or nil
func (s *Service) ActiveSession(employeeID string) (*models.TripSession, error) {
	return s.trips.GetActiveSessionByEmployee(employeeID)
}

// SessionDetail returns a session with its ordered samples and visits
func (s *Service) SessionDetail(sessionID string) (*models.TripSession, error) {
	session, err := s.trips.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Samples, err = s.trips.ListSamples(sessionID); err != nil {
		return nil, err
	}
	if session.Visits, err = s.trips.ListVisits(sessionID); err != nil {
		return nil, err
	}
	return session, nil
}

// CompletedInRange returns the employee's completed sessions whose
// start time falls within [from, to].
func (s *Service) CompletedInRange(employeeID string, from, to time.Time) ([]models.TripSession, error) {
	return s.trips.ListCompletedInRange(employeeID, from, to)
}
