// Package directory exposes the external-collaborator contracts this
// core consumes: the employee/grade directory and the rate-table/policy
// source. The sqlite-backed implementation wraps DirectoryRepository;
// the tables themselves are maintained by admin tooling outside this
// system.
package directory

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/repository"
)

// ErrEmployeeNotFound is returned when an employee identifier is unknown
// to the directory.
var ErrEmployeeNotFound = errors.New("employee not found")

// EmployeeDirectory is the contract for employee/grade/chain lookups
type EmployeeDirectory interface {
	Employee(id string) (*models.Employee, error)
	ApproverActive(id string) (bool, error)
}

// RateSource is the contract for rate-table and policy lookups. RateFor
// never fails on an unmatched grade: it returns the default entry with
// usedDefault set, so expense entry is never blocked.
type RateSource interface {
	RateFor(gradeKey string) (models.RateEntry, bool, error)
	PolicyFor(gradeKey string) (*models.GradePolicy, error)
}

// Service implements both contracts over the sqlite directory tables
type Service struct {
	repo        *repository.DirectoryRepository
	defaultRate models.RateEntry
	logger      *zap.Logger
}

// NewService creates a directory service. defaultRate is the documented
// fallback entry applied when a grade key has no configured rate.
func NewService(repo *repository.DirectoryRepository, defaultRate models.RateEntry, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		defaultRate: defaultRate,
		logger:      logger,
	}
}

// Employee looks up an employee and their configured approval chain
func (s *Service) Employee(id string) (*models.Employee, error) {
	emp, err := s.repo.GetEmployee(id)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
	}
	return emp, nil
}

// ApproverActive reports directory-level activity of an approver
func (s *Service) ApproverActive(id string) (bool, error) {
	return s.repo.ApproverActive(id)
}

// RateFor resolves the rate entry for a grade, falling back to the
// default entry on an unmatched key.
func (s *Service) RateFor(gradeKey string) (models.RateEntry, bool, error) {
	entry, err := s.repo.GetRate(gradeKey)
	if err != nil {
		return models.RateEntry{}, false, err
	}
	if entry == nil {
		s.logger.Warn("No rate entry for grade, using default",
			zap.String("grade_key", gradeKey))
		return s.defaultRate, true, nil
	}
	return *entry, false, nil
}

// PolicyFor resolves the grade policy record, or nil when unconfigured
func (s *Service) PolicyFor(gradeKey string) (*models.GradePolicy, error) {
	return s.repo.GetPolicy(gradeKey)
}
