package distance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

func sample(lat, lon float64) models.LocationSample {
	return models.LocationSample{Latitude: lat, Longitude: lon, Timestamp: time.Now()}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Connaught Place to India Gate, New Delhi: roughly 2.2 km
	d := HaversineM(28.6315, 77.2167, 28.6129, 77.2295)
	assert.InDelta(t, 2400, d, 300)

	// Same point is zero
	assert.Equal(t, 0.0, HaversineM(12.9716, 77.5946, 12.9716, 77.5946))
}

func TestEvaluateFirstSampleAlwaysAccepted(t *testing.T) {
	d := Evaluate(nil, sample(12.9716, 77.5946), 10)
	assert.True(t, d.Accept)
	assert.Equal(t, 0.0, d.IncrementM)
}

func TestEvaluateBelowThresholdRejected(t *testing.T) {
	last := sample(12.9716, 77.5946)
	// ~1 m to the east
	near := sample(12.9716, 77.59461)

	d := Evaluate(&last, near, 10)
	assert.False(t, d.Accept)
	assert.Equal(t, 0.0, d.IncrementM)
}

func TestEvaluateAboveThresholdAccepted(t *testing.T) {
	last := sample(12.9716, 77.5946)
	// ~110 m north
	far := sample(12.9726, 77.5946)

	d := Evaluate(&last, far, 10)
	assert.True(t, d.Accept)
	assert.InDelta(t, 110, d.IncrementM, 5)
}

func TestAccumulatorRejectedSamplesDoNotAdvancePointer(t *testing.T) {
	acc := NewAccumulator(10)

	origin := sample(12.9716, 77.5946)
	require.True(t, acc.Offer(origin).Accept)

	// Jitter around the origin: each step is below threshold on its own,
	// so none may accumulate even though they drift in one direction.
	jitter := []models.LocationSample{
		sample(12.97162, 77.5946),
		sample(12.97164, 77.5946),
		sample(12.97166, 77.5946),
	}
	for _, s := range jitter {
		d := acc.Offer(s)
		assert.False(t, d.Accept)
	}
	assert.Equal(t, 0.0, acc.TotalKm())
	assert.Equal(t, origin.Latitude, acc.Last().Latitude)

	// A real move measured from the origin, not the last jitter point
	far := sample(12.9726, 77.5946)
	d := acc.Offer(far)
	require.True(t, d.Accept)
	assert.InDelta(t, 110, d.IncrementM, 5)
}

func TestAccumulatorTotalEqualsSumOfAcceptedIncrements(t *testing.T) {
	acc := NewAccumulator(10)

	track := []models.LocationSample{
		sample(12.9716, 77.5946),
		sample(12.9726, 77.5946),
		sample(12.97261, 77.5946), // below threshold, dropped
		sample(12.9736, 77.5946),
		sample(12.9746, 77.5946),
	}

	var sum float64
	for _, s := range track {
		d := acc.Offer(s)
		if d.Accept {
			sum += d.IncrementM
		}
	}
	assert.InDelta(t, sum/1000, acc.TotalKm(), 1e-9)
	assert.InDelta(t, 0.332, acc.TotalKm(), 0.02)
}

func TestAccumulatorMonotonicNonDecreasing(t *testing.T) {
	acc := NewAccumulator(10)
	prev := 0.0
	lat := 12.9716
	for i := 0; i < 50; i++ {
		lat += 0.0001 * float64(i%3) // mix of accepted and rejected steps
		acc.Offer(sample(lat, 77.5946))
		assert.GreaterOrEqual(t, acc.TotalKm(), prev)
		prev = acc.TotalKm()
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	track := []models.LocationSample{
		sample(12.9716, 77.5946),
		sample(12.9726, 77.5950),
		sample(12.9736, 77.5958),
		sample(12.9740, 77.5960),
	}

	acc := NewAccumulator(10)
	var accepted []models.LocationSample
	for _, s := range track {
		if acc.Offer(s).Accept {
			accepted = append(accepted, s)
		}
	}

	// Replaying the accepted sequence reproduces the stored total exactly
	assert.Equal(t, acc.TotalKm(), RecomputeKm(accepted, 10))
}

func TestResumeContinuesStoredTrack(t *testing.T) {
	last := sample(12.9726, 77.5946)
	acc := Resume(10, &last, 1.5)

	assert.InDelta(t, 1.5, acc.TotalKm(), 1e-9)

	d := acc.Offer(sample(12.9736, 77.5946))
	require.True(t, d.Accept)
	assert.Greater(t, acc.TotalKm(), 1.5)
}

func TestDegradedAccuracyStillUsesThresholdRule(t *testing.T) {
	last := sample(12.9716, 77.5946)
	coarse := sample(12.9726, 77.5946)
	coarse.AccuracyM = 12000
	coarse.Quality = models.QualityCoarse

	// Distance logic ignores the quality flag; the flag travels with the
	// sample for upstream consumers.
	d := Evaluate(&last, coarse, 10)
	assert.True(t, d.Accept)
}
