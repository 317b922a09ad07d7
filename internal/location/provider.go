package location

import (
	"errors"
	"time"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// Classified positioning errors. These are recoverable by retrying with
// relaxed options (lower accuracy, longer timeout); callers decide the
// retry policy, the sampler never retries on its own.
var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrUnavailable      = errors.New("location unavailable")
	ErrTimeout          = errors.New("location acquisition timed out")
	ErrUnsupported      = errors.New("positioning not supported")
)

// Options controls a single acquisition attempt
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaxCacheAge bounds how stale a cached fix may be. Zero forces a
	// fresh reading; the provider must never satisfy a zero-age request
	// from cache.
	MaxCacheAge time.Duration
}

// Provider abstracts the underlying positioning capability (device GPS
// gateway, mobile client relay, simulator). Implementations return one
// of the classified errors above on failure.
type Provider interface {
	AcquireOnce(opts Options) (models.LocationSample, error)
}
