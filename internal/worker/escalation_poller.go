package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/approval"
)

// EscalationPoller periodically sweeps pending claims and escalates
// those whose current approver has gone inactive since submission.
// Submission-time escalation catches approvers who were already gone;
// this poller catches the ones who resign while claims sit in their
// queue.
type EscalationPoller struct {
	engine *approval.Engine
	logger *zap.Logger

	pollInterval time.Duration

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEscalationPoller creates a poller. A non-positive interval falls
// back to 5 minutes.
func NewEscalationPoller(engine *approval.Engine, pollInterval time.Duration, logger *zap.Logger) *EscalationPoller {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	return &EscalationPoller{
		engine:       engine,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

// Name implements Worker
func (p *EscalationPoller) Name() string {
	return "escalation-poller"
}

// Start begins the polling loop
func (p *EscalationPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("escalation poller is already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.isRunning = true

	p.logger.Info("EscalationPoller started",
		zap.Duration("poll_interval", p.pollInterval))

	go p.pollLoop()
	return nil
}

// Stop halts the polling loop and waits for it to exit
func (p *EscalationPoller) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.cancel()
	done := p.done
	p.isRunning = false
	p.mu.Unlock()

	<-done
}

func (p *EscalationPoller) pollLoop() {
	defer close(p.done)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			escalated, err := p.engine.EscalatePending()
			if err != nil {
				p.logger.Error("Escalation sweep failed", zap.Error(err))
				continue
			}
			if escalated > 0 {
				p.logger.Info("Escalation sweep advanced claims",
					zap.Int("escalated", escalated))
			}
		}
	}
}
