package worker

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	"github.com/fieldtrack/trip-reimbursement/internal/location"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/repository"
	"github.com/fieldtrack/trip-reimbursement/internal/trip"
	"github.com/fieldtrack/trip-reimbursement/pkg/database"
)

// walkProvider emits fixes marching north, 50m per acquisition.
type walkProvider struct {
	mu  sync.Mutex
	lat float64
	lon float64
}

func (p *walkProvider) AcquireOnce(opts location.Options) (models.LocationSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lat += 50.0 / 111320.0
	return models.LocationSample{
		Latitude:  p.lat,
		Longitude: p.lon,
		Timestamp: time.Now().UTC(),
		AccuracyM: 5,
	}, nil
}

func setupAgentFixture(t *testing.T) (*trip.Service, *database.DB) {
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

	_, err = db.Exec(
		"INSERT INTO employees (id, name, grade_key, active) VALUES ('emp-1', 'emp-1', 'G1', 1)")
	require.NoError(t, err)
	_, err = db.Exec(
		"INSERT INTO rate_entries (grade_key, per_km_rate, daily_allowance) VALUES ('G1', '12', '500')")
	require.NoError(t, err)

	trips := repository.NewTripRepository(db.DB, logger)
	dirRepo := repository.NewDirectoryRepository(db.DB, logger)
	dir := directory.NewService(dirRepo, models.RateEntry{
		GradeKey:  "DEFAULT",
		PerKmRate: decimal.NewFromInt(8),
	}, logger)

	return trip.NewService(db, trips, dir, dir, 10, logger), db
}

func TestTrackingAgentFeedsActiveSession(t *testing.T) {
	svc, _ := setupAgentFixture(t)

	session, err := svc.StartTrip("emp-1", models.GeoPoint{Latitude: 28.6139, Longitude: 77.2090})
	require.NoError(t, err)

	provider := &walkProvider{lat: 28.6139, lon: 77.2090}
	sampler := location.NewSampler(provider, 5000, zap.NewNop())
	agent := NewTrackingAgent(sampler, svc, "emp-1", 10*time.Millisecond, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, agent.Start(ctx))

	require.Eventually(t, func() bool {
		detail, err := svc.SessionDetail(session.ID)
		if err != nil {
			return false
		}
		return detail.DistanceKm > 0.1 && len(detail.Samples) >= 3
	}, 5*time.Second, 20*time.Millisecond)

	agent.Stop()

	detail, err := svc.SessionDetail(session.ID)
	require.NoError(t, err)
	// The first accepted fix seeds the reference point; each fix after
	// it is a 50m northward step.
	assert.InDelta(t, 0.05*float64(len(detail.Samples)-1), detail.DistanceKm, 0.01*detail.DistanceKm+1e-9)
	assert.Equal(t, models.TripStatusActive, detail.Status)
}

func TestTrackingAgentDropsFixesWithoutSession(t *testing.T) {
	svc, db := setupAgentFixture(t)

	provider := &walkProvider{lat: 28.6139, lon: 77.2090}
	sampler := location.NewSampler(provider, 5000, zap.NewNop())
	agent := NewTrackingAgent(sampler, svc, "emp-1", 5*time.Millisecond, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, agent.Start(ctx))

	time.Sleep(60 * time.Millisecond)
	agent.Stop()

	var samples int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM trip_samples").Scan(&samples))
	assert.Zero(t, samples)
}

func TestTrackingAgentStopIsIdempotent(t *testing.T) {
	svc, _ := setupAgentFixture(t)

	sampler := location.NewSampler(&walkProvider{lat: 28.6139, lon: 77.2090}, 5000, zap.NewNop())
	agent := NewTrackingAgent(sampler, svc, "emp-1", 10*time.Millisecond, 10*time.Millisecond, zap.NewNop())

	require.NoError(t, agent.Start(context.Background()))
	require.Error(t, agent.Start(context.Background()))

	agent.Stop()
	agent.Stop()
}

func TestWalkProviderStepLength(t *testing.T) {
	p := &walkProvider{lat: 28.6139, lon: 77.2090}
	first, err := p.AcquireOnce(location.Options{})
	require.NoError(t, err)
	second, err := p.AcquireOnce(location.Options{})
	require.NoError(t, err)
	assert.InDelta(t, 50.0/111320.0, math.Abs(second.Latitude-first.Latitude), 1e-12)
}
