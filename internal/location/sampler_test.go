package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// fakeProvider replays a scripted sequence of results
type fakeProvider struct {
	mu      sync.Mutex
	results []fakeResult
	calls   []Options
}

type fakeResult struct {
	sample models.LocationSample
	err    error
}

func (f *fakeProvider) AcquireOnce(opts Options) (models.LocationSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if len(f.results) == 0 {
		return models.LocationSample{Latitude: 1, Longitude: 1, Timestamp: time.Now()}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.sample, r.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestAcquireOnceClassifiesQuality(t *testing.T) {
	tests := []struct {
		name         string
		accuracyM    float64
		highAccuracy bool
		want         models.SampleQuality
	}{
		{name: "good fix", accuracyM: 12, highAccuracy: true, want: models.QualityGood},
		{name: "low confidence on high accuracy request", accuracyM: 1500, highAccuracy: true, want: models.QualityLowConfidence},
		{name: "poor fix tolerated on low accuracy request", accuracyM: 1500, highAccuracy: false, want: models.QualityGood},
		{name: "coarse network positioning", accuracyM: 8000, highAccuracy: true, want: models.QualityCoarse},
		{name: "coarse regardless of accuracy mode", accuracyM: 8000, highAccuracy: false, want: models.QualityCoarse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{results: []fakeResult{
				{sample: models.LocationSample{Latitude: 1, Longitude: 1, AccuracyM: tt.accuracyM, Timestamp: time.Now()}},
			}}
			s := NewSampler(provider, 5000, zap.NewNop())

			sample, err := s.AcquireOnce(Options{HighAccuracy: tt.highAccuracy})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sample.Quality)
		})
	}
}

func TestAcquireOnceSurfacesClassifiedErrors(t *testing.T) {
	provider := &fakeProvider{results: []fakeResult{{err: ErrTimeout}}}
	s := NewSampler(provider, 0, zap.NewNop())

	_, err := s.AcquireOnce(Options{HighAccuracy: true, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStartContinuousDeliversSamples(t *testing.T) {
	provider := &fakeProvider{}
	s := NewSampler(provider, 0, zap.NewNop())

	w, err := s.StartContinuous(context.Background(), 5*time.Millisecond, Options{
		HighAccuracy: true,
		Timeout:      50 * time.Millisecond,
		MaxCacheAge:  time.Minute, // must be overridden, never honored
	})
	require.NoError(t, err)
	defer w.Cancel()

	select {
	case sample := <-w.Samples():
		assert.Equal(t, 1.0, sample.Latitude)
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}

	// Continuous watches must request fresh fixes only
	provider.mu.Lock()
	for _, opts := range provider.calls {
		assert.Equal(t, time.Duration(0), opts.MaxCacheAge)
		assert.Equal(t, 50*time.Millisecond, opts.Timeout)
	}
	provider.mu.Unlock()
}

func TestStartContinuousSecondWatchFails(t *testing.T) {
	s := NewSampler(&fakeProvider{}, 0, zap.NewNop())

	w, err := s.StartContinuous(context.Background(), time.Minute, Options{})
	require.NoError(t, err)
	defer w.Cancel()

	_, err = s.StartContinuous(context.Background(), time.Minute, Options{})
	assert.ErrorIs(t, err, ErrWatchActive)
}

func TestCancelStopsAcquisitionAndClosesChannel(t *testing.T) {
	provider := &fakeProvider{}
	s := NewSampler(provider, 0, zap.NewNop())

	w, err := s.StartContinuous(context.Background(), 5*time.Millisecond, Options{})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	w.Cancel()
	before := provider.callCount()

	// Channel drains then closes
	for range w.Samples() {
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, provider.callCount())

	// A new watch may start after cancellation
	w2, err := s.StartContinuous(context.Background(), time.Minute, Options{})
	require.NoError(t, err)
	w2.Cancel()
}

func TestContinuousWatchSkipsFailedAcquisitions(t *testing.T) {
	provider := &fakeProvider{results: []fakeResult{
		{err: ErrUnavailable},
		{err: ErrTimeout},
		{sample: models.LocationSample{Latitude: 2, Longitude: 2, Timestamp: time.Now()}},
	}}
	s := NewSampler(provider, 0, zap.NewNop())

	w, err := s.StartContinuous(context.Background(), 5*time.Millisecond, Options{HighAccuracy: true})
	require.NoError(t, err)
	defer w.Cancel()

	select {
	case sample := <-w.Samples():
		assert.Equal(t, 2.0, sample.Latitude)
	case <-time.After(time.Second):
		t.Fatal("stream did not survive transient failures")
	}
}
