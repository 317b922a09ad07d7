package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/location"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/trip"
)

// TrackingAgent runs a continuous location watch and feeds each fix
// into the employee's active trip session. Fixes that arrive while the
// employee has no active session are dropped; the agent never starts
// or ends sessions on its own.
type TrackingAgent struct {
	sampler        *location.Sampler
	trips          *trip.Service
	employeeID     string
	sampleInterval time.Duration
	acquireTimeout time.Duration
	logger         *zap.Logger

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTrackingAgent creates a tracking agent for one employee.
func NewTrackingAgent(sampler *location.Sampler, trips *trip.Service, employeeID string, sampleInterval, acquireTimeout time.Duration, logger *zap.Logger) *TrackingAgent {
	return &TrackingAgent{
		sampler:        sampler,
		trips:          trips,
		employeeID:     employeeID,
		sampleInterval: sampleInterval,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

// Name implements Worker
func (a *TrackingAgent) Name() string {
	return "tracking-agent"
}

// Start begins the watch and the feed loop
func (a *TrackingAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isRunning {
		return fmt.Errorf("tracking agent is already running")
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	watch, err := a.sampler.StartContinuous(a.ctx, a.sampleInterval, location.Options{
		HighAccuracy: true,
		Timeout:      a.acquireTimeout,
	})
	if err != nil {
		a.cancel()
		return fmt.Errorf("failed to start location watch: %w", err)
	}

	a.done = make(chan struct{})
	a.isRunning = true

	a.logger.Info("TrackingAgent started",
		zap.String("employee_id", a.employeeID),
		zap.Duration("sample_interval", a.sampleInterval))

	go a.feedLoop(watch)
	return nil
}

// Stop halts the feed loop and waits for it to exit
func (a *TrackingAgent) Stop() {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return
	}
	a.cancel()
	done := a.done
	a.isRunning = false
	a.mu.Unlock()

	<-done
}

func (a *TrackingAgent) feedLoop(watch *location.Watch) {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			return
		case sample, ok := <-watch.Samples():
			if !ok {
				return
			}
			a.deliver(sample)
		}
	}
}

func (a *TrackingAgent) deliver(sample models.LocationSample) {
	session, err := a.trips.ActiveSession(a.employeeID)
	if err != nil {
		a.logger.Error("Failed to look up active session",
			zap.String("employee_id", a.employeeID),
			zap.Error(err))
		return
	}
	if session == nil {
		return
	}

	result, err := a.trips.AddSample(session.ID, sample)
	if err != nil {
		// The session can end between the lookup and the append.
		if errors.Is(err, trip.ErrSessionNotActive) || errors.Is(err, trip.ErrSessionNotFound) {
			return
		}
		a.logger.Error("Failed to record sample",
			zap.String("session_id", session.ID),
			zap.Error(err))
		return
	}

	a.logger.Debug("Sample recorded",
		zap.String("session_id", session.ID),
		zap.Bool("accepted", result.Accepted),
		zap.Float64("distance_km", result.DistanceKm))
}
