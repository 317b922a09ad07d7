package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// ErrWatchActive is returned when a continuous stream is started while
// a previous one on the same sampler has not been cancelled.
var ErrWatchActive = errors.New("continuous watch already active")

// lowConfidenceAccuracyM marks a high-accuracy request whose fix came
// back worse than 1 km; the caller should surface a warning instead of
// silently trusting it.
const lowConfidenceAccuracyM = 1000.0

// DefaultCoarseCeilingM flags readings indicative of coarse network
// positioning. Flagged samples are kept; the noise filter decides.
const DefaultCoarseCeilingM = 5000.0

// Sampler acquires location samples from a Provider and annotates them
// with a quality classification.
type Sampler struct {
	provider       Provider
	coarseCeilingM float64
	logger         *zap.Logger

	mu    sync.Mutex
	watch *Watch
}

// NewSampler creates a sampler. A non-positive coarseCeilingM falls back
// to DefaultCoarseCeilingM.
func NewSampler(provider Provider, coarseCeilingM float64, logger *zap.Logger) *Sampler {
	if coarseCeilingM <= 0 {
		coarseCeilingM = DefaultCoarseCeilingM
	}
	return &Sampler{
		provider:       provider,
		coarseCeilingM: coarseCeilingM,
		logger:         logger,
	}
}

// AcquireOnce performs a single acquisition and classifies the result.
// Errors are returned as-is; they are never swallowed or retried here.
func (s *Sampler) AcquireOnce(opts Options) (models.LocationSample, error) {
	sample, err := s.provider.AcquireOnce(opts)
	if err != nil {
		return models.LocationSample{}, err
	}

	sample.Quality = s.classify(sample, opts)
	if sample.Quality != models.QualityGood {
		s.logger.Warn("Degraded location fix",
			zap.Float64("accuracy_m", sample.AccuracyM),
			zap.String("quality", string(sample.Quality)))
	}
	return sample, nil
}

func (s *Sampler) classify(sample models.LocationSample, opts Options) models.SampleQuality {
	switch {
	case sample.AccuracyM > s.coarseCeilingM:
		return models.QualityCoarse
	case opts.HighAccuracy && sample.AccuracyM > lowConfidenceAccuracyM:
		return models.QualityLowConfidence
	default:
		return models.QualityGood
	}
}

// Watch is a handle to a running continuous acquisition stream.
type Watch struct {
	samples chan models.LocationSample
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Samples returns the stream of successfully acquired samples. The
// channel is closed after Cancel.
func (w *Watch) Samples() <-chan models.LocationSample {
	return w.samples
}

// Cancel stops the acquisition loop. Safe to call more than once.
func (w *Watch) Cancel() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// StartContinuous begins periodic acquisition at the given interval.
// Exactly one watch may be active per sampler; starting a second one
// without cancelling the first is a caller bug and fails with
// ErrWatchActive. The caller's acquisition options are honored except
// MaxCacheAge, which is forced to zero: continuous tracking always
// wants fresh fixes. A non-positive Timeout falls back to the interval.
// Acquisition failures are logged and skipped; the stream keeps running
// until cancelled.
func (s *Sampler) StartContinuous(ctx context.Context, interval time.Duration, opts Options) (*Watch, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid watch interval: %v", interval)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = interval
	}
	opts.MaxCacheAge = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch != nil {
		return nil, ErrWatchActive
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watch{
		samples: make(chan models.LocationSample, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.watch = w

	go s.watchLoop(watchCtx, w, interval, opts)

	s.logger.Info("Continuous location watch started",
		zap.Duration("interval", interval),
		zap.Duration("timeout", opts.Timeout),
		zap.Bool("high_accuracy", opts.HighAccuracy))
	return w, nil
}

func (s *Sampler) watchLoop(ctx context.Context, w *Watch, interval time.Duration, opts Options) {
	defer func() {
		close(w.samples)
		close(w.done)

		s.mu.Lock()
		if s.watch == w {
			s.watch = nil
		}
		s.mu.Unlock()

		s.logger.Info("Continuous location watch stopped")
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := s.AcquireOnce(opts)
			if err != nil {
				s.logger.Warn("Continuous acquisition failed", zap.Error(err))
				continue
			}
			select {
			case w.samples <- sample:
			case <-ctx.Done():
				return
			default:
				// Consumer is behind; drop the oldest pending fix in
				// favor of the newer one.
				select {
				case <-w.samples:
				default:
				}
				select {
				case w.samples <- sample:
				default:
				}
			}
		}
	}
}
