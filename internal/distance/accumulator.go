package distance

import (
	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// DefaultMinDistanceM is the noise-filter threshold applied when a
// caller does not configure one.
const DefaultMinDistanceM = 10.0

// Decision is the outcome of evaluating a candidate sample against the
// last accepted one.
type Decision struct {
	Accept     bool
	IncrementM float64
}

// Evaluate decides whether a candidate sample extends the track. It is a
// pure function: the first sample of a session (last == nil) is always
// accepted with zero increment; later candidates are accepted only when
// they moved at least minDistanceM from the last accepted sample.
// Rejected candidates contribute nothing and do not advance the
// last-accepted reference point. Accuracy degradation is communicated by
// the sample's quality flag, never by this rule.
func Evaluate(last *models.LocationSample, candidate models.LocationSample, minDistanceM float64) Decision {
	if last == nil {
		return Decision{Accept: true, IncrementM: 0}
	}

	d := HaversineM(last.Latitude, last.Longitude, candidate.Latitude, candidate.Longitude)
	if d < minDistanceM {
		return Decision{Accept: false, IncrementM: 0}
	}
	return Decision{Accept: true, IncrementM: d}
}

// Accumulator folds accepted samples into a running distance. It holds
// no state beyond the last accepted sample and the running total.
type Accumulator struct {
	minDistanceM float64
	last         *models.LocationSample
	totalM       float64
}

// NewAccumulator creates an accumulator with the given noise threshold.
// A non-positive threshold falls back to DefaultMinDistanceM.
func NewAccumulator(minDistanceM float64) *Accumulator {
	if minDistanceM <= 0 {
		minDistanceM = DefaultMinDistanceM
	}
	return &Accumulator{minDistanceM: minDistanceM}
}

// Resume seeds an accumulator from persisted session state so that a
// restarted process continues where the stored track left off.
func Resume(minDistanceM float64, last *models.LocationSample, totalKm float64) *Accumulator {
	acc := NewAccumulator(minDistanceM)
	acc.last = last
	acc.totalM = totalKm * 1000
	return acc
}

// Offer evaluates a candidate and, when accepted, extends the total.
func (a *Accumulator) Offer(candidate models.LocationSample) Decision {
	d := Evaluate(a.last, candidate, a.minDistanceM)
	if d.Accept {
		c := candidate
		a.last = &c
		a.totalM += d.IncrementM
	}
	return d
}

// Last returns the last accepted sample, or nil before the first one
func (a *Accumulator) Last() *models.LocationSample {
	return a.last
}

// TotalKm returns the running distance in kilometers
func (a *Accumulator) TotalKm() float64 {
	return a.totalM / 1000
}

// RecomputeKm replays an ordered sample sequence through a fresh
// accumulator and returns the resulting distance in kilometers.
// Recomputing a completed session's stored samples with the same
// threshold yields the session's stored distance.
func RecomputeKm(samples []models.LocationSample, minDistanceM float64) float64 {
	acc := NewAccumulator(minDistanceM)
	for _, s := range samples {
		acc.Offer(s)
	}
	return acc.TotalKm()
}
