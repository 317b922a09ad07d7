package location

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

const metersPerDegreeLat = 111320.0

// SimulatedProvider emits a random walk of plausible GPS fixes. It
// stands in for a device gateway in development and demo environments;
// each acquisition steps 12 to 50 meters from the previous fix.
type SimulatedProvider struct {
	mu    sync.Mutex
	rng   *rand.Rand
	lat   float64
	lon   float64
	stepM float64
}

// NewSimulatedProvider creates a simulator walking from the given start
// point.
func NewSimulatedProvider(startLat, startLon float64) *SimulatedProvider {
	return &SimulatedProvider{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		lat:   startLat,
		lon:   startLon,
		stepM: 25,
	}
}

// AcquireOnce advances the walk and returns the new fix. It never
// fails; accuracy degrades when a high-accuracy fix was not requested.
func (p *SimulatedProvider) AcquireOnce(opts Options) (models.LocationSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	heading := p.rng.Float64() * 2 * math.Pi
	dist := p.stepM * (0.5 + p.rng.Float64()*1.5)
	p.lat += dist * math.Cos(heading) / metersPerDegreeLat
	p.lon += dist * math.Sin(heading) / (metersPerDegreeLat * math.Cos(p.lat*math.Pi/180))

	accuracy := 5 + p.rng.Float64()*10
	if !opts.HighAccuracy {
		accuracy *= 20
	}

	return models.LocationSample{
		Latitude:  p.lat,
		Longitude: p.lon,
		Timestamp: time.Now().UTC(),
		AccuracyM: accuracy,
	}, nil
}
