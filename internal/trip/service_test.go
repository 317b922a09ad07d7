package trip

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	"github.com/fieldtrack/trip-reimbursement/internal/distance"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/repository"
	"github.com/fieldtrack/trip-reimbursement/pkg/database"
)

func setupService(t *testing.T) (*Service, *database.DB) {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run("../../migrations"))

	trips := repository.NewTripRepository(db.DB, logger)
	dirRepo := repository.NewDirectoryRepository(db.DB, logger)
	dir := directory.NewService(dirRepo, models.RateEntry{
		GradeKey:  "DEFAULT",
		PerKmRate: decimal.NewFromInt(8),
	}, logger)

	return NewService(db, trips, dir, dir, distance.DefaultMinDistanceM, logger), db
}

func seedFieldEmployee(t *testing.T, db *database.DB, id, gradeKey string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO employees (id, name, grade_key, active) VALUES (?, ?, ?, 1)",
		id, id, gradeKey,
	)
	require.NoError(t, err)
}

func seedRate(t *testing.T, db *database.DB, gradeKey, perKm, daily string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO rate_entries (grade_key, per_km_rate, daily_allowance) VALUES (?, ?, ?)",
		gradeKey, perKm, daily,
	)
	require.NoError(t, err)
}

func sampleAt(lat, lon float64) models.LocationSample {
	return models.LocationSample{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: time.Now().UTC(),
		AccuracyM: 5,
		Quality:   models.QualityGood,
	}
}

func TestStartTripRejectsSecondActive(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")

	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusActive, session.Status)

	_, err = svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	assert.ErrorIs(t, err, ErrAlreadyActive)

	active, err := svc.ActiveSession("emp-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)
}

func TestStartTripUnknownEmployee(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.StartTrip("nobody", models.GeoPoint{})
	assert.ErrorIs(t, err, directory.ErrEmployeeNotFound)
}

func TestConcurrentStartExactlyOneWins(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")

	const starters = 4
	errs := make(chan error, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyActive)
		}
	}
	assert.Equal(t, 1, started)
}

func TestAddSampleFiltersJitter(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")
	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	// first sample anchors the track and adds no distance
	res, err := svc.AddSample(session.ID, sampleAt(28.61, 77.21))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Zero(t, res.DistanceKm)

	// ~1m north, below the 10m threshold
	res, err = svc.AddSample(session.ID, sampleAt(28.61001, 77.21))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.DistanceKm)

	// ~111m north, well above the threshold
	res, err = svc.AddSample(session.ID, sampleAt(28.611, 77.21))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.InDelta(t, 0.111, res.DistanceKm, 0.002)

	// the rejected sample must not have moved the reference point:
	// the increment is measured from the first sample, not the jitter
	detail, err := svc.SessionDetail(session.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Samples, 2)
}

func TestAddSampleOnCompletedSession(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")
	seedRate(t, db, "G1", "12", "500")
	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	_, err = svc.EndTrip(session.ID, models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	_, err = svc.AddSample(session.ID, sampleAt(28.62, 77.21))
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestDealerVisitDoesNotChangeDistance(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")
	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	_, err = svc.AddSample(session.ID, sampleAt(28.61, 77.21))
	require.NoError(t, err)

	visit, err := svc.AddDealerVisit(session.ID,
		models.GeoPoint{Latitude: 28.61, Longitude: 77.21},
		time.Now().UTC(), "Sharma Motors", "stock check")
	require.NoError(t, err)
	assert.Equal(t, "Sharma Motors", visit.DealerName)

	detail, err := svc.SessionDetail(session.ID)
	require.NoError(t, err)
	assert.Zero(t, detail.DistanceKm)
	require.Len(t, detail.Visits, 1)
	assert.Equal(t, visit.ID, detail.Visits[0].ID)
}

func TestEndTripPricesDistance(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")
	seedRate(t, db, "G1", "12", "500")
	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	// walk north in ~1.1km steps
	lat := 28.61
	for i := 0; i < 5; i++ {
		_, err = svc.AddSample(session.ID, sampleAt(lat, 77.21))
		require.NoError(t, err)
		lat += 0.01
	}

	done, err := svc.EndTrip(session.ID, models.GeoPoint{Latitude: lat, Longitude: 77.21})
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusCompleted, done.Status)
	require.NotNil(t, done.EndTime)
	require.NotNil(t, done.TotalExpense)

	// amount = distance * per-km rate + daily allowance, rounded to paise
	want := decimal.NewFromFloat(done.DistanceKm).
		Mul(decimal.NewFromInt(12)).
		Add(decimal.NewFromInt(500)).
		Round(2)
	assert.True(t, done.TotalExpense.Equal(want),
		"expense %s, want %s", done.TotalExpense, want)
	assert.Greater(t, done.DistanceKm, 4.0)
}

func TestEndTripUnknownGradeUsesDefaultRate(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-2", "UNRATED")
	session, err := svc.StartTrip("emp-2", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	_, err = svc.AddSample(session.ID, sampleAt(28.61, 77.21))
	require.NoError(t, err)
	_, err = svc.AddSample(session.ID, sampleAt(28.62, 77.21))
	require.NoError(t, err)

	done, err := svc.EndTrip(session.ID, models.GeoPoint{Latitude: 28.62, Longitude: 77.21})
	require.NoError(t, err)
	require.NotNil(t, done.TotalExpense)

	// default entry carries no daily allowance
	want := decimal.NewFromFloat(done.DistanceKm).
		Mul(decimal.NewFromInt(8)).
		Round(2)
	assert.True(t, done.TotalExpense.Equal(want),
		"expense %s, want %s", done.TotalExpense, want)
}

func TestEndTripFreezesSession(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")
	seedRate(t, db, "G1", "12", "500")
	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	_, err = svc.AddSample(session.ID, sampleAt(28.61, 77.21))
	require.NoError(t, err)
	_, err = svc.AddSample(session.ID, sampleAt(28.62, 77.21))
	require.NoError(t, err)

	done, err := svc.EndTrip(session.ID, models.GeoPoint{Latitude: 28.62, Longitude: 77.21})
	require.NoError(t, err)
	frozenKm := done.DistanceKm

	_, err = svc.EndTrip(session.ID, models.GeoPoint{Latitude: 28.63, Longitude: 77.21})
	assert.ErrorIs(t, err, ErrSessionNotActive)
	_, err = svc.AddDealerVisit(session.ID, models.GeoPoint{}, time.Time{}, "late", "")
	assert.ErrorIs(t, err, ErrSessionNotActive)

	got, err := svc.SessionDetail(session.ID)
	require.NoError(t, err)
	assert.Equal(t, frozenKm, got.DistanceKm)

	// a new trip can start once the previous one is completed
	_, err = svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.62, Longitude: 77.21})
	require.NoError(t, err)
}

func TestStoredSamplesRecomputeToStoredDistance(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")
	seedRate(t, db, "G1", "12", "500")
	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	lat, lon := 28.61, 77.21
	for i := 0; i < 8; i++ {
		_, err = svc.AddSample(session.ID, sampleAt(lat, lon))
		require.NoError(t, err)
		lat += 0.003
		lon += 0.002
	}

	done, err := svc.EndTrip(session.ID, models.GeoPoint{Latitude: lat, Longitude: lon})
	require.NoError(t, err)

	detail, err := svc.SessionDetail(session.ID)
	require.NoError(t, err)
	replayed := distance.RecomputeKm(detail.Samples, distance.DefaultMinDistanceM)
	assert.InDelta(t, done.DistanceKm, replayed, 1e-9)
}

func TestCompletedInRange(t *testing.T) {
	svc, db := setupService(t)
	seedFieldEmployee(t, db, "emp-1", "G1")
	seedRate(t, db, "G1", "12", "500")

	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)
	_, err = svc.EndTrip(session.ID, models.GeoPoint{Latitude: 28.61, Longitude: 77.21})
	require.NoError(t, err)

	now := time.Now().UTC()
	trips, err := svc.CompletedInRange("emp-1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, session.ID, trips[0].ID)

	trips, err = svc.CompletedInRange("emp-1", now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, trips)
}
