package tracker

import (
	"errors"
	"time"

	"github.com/loomwork/loom/pkg/sdk"
)

// RetryConfig bounds RetryingTracker's backoff: Attempts total tries per
// operation, delays doubling from BaseDelay up to MaxDelay.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryConfig is the documented retry contract for remote tracker
// backends: at least three attempts with a capped exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
}

// RetryingTracker decorates a Tracker whose backend is remote: any
// operation failing with a transient error is retried with bounded
// exponential backoff; after exhaustion the last error is returned so
// the session reports a retriable failure. Non-transient errors pass
// through immediately. Reads (Get/List/Marker) are served directly —
// the backends here answer them from memory.
type RetryingTracker struct {
	Tracker
	config RetryConfig

	// Sleep is injectable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// WithRetry wraps trk in the retry policy.
func WithRetry(trk Tracker, config RetryConfig) *RetryingTracker {
	if config.Attempts < 1 {
		config.Attempts = DefaultRetryConfig().Attempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &RetryingTracker{Tracker: trk, config: config, Sleep: time.Sleep}
}

func (t *RetryingTracker) retry(op func() error) error {
	delay := t.config.BaseDelay
	var err error
	for attempt := 0; attempt < t.config.Attempts; attempt++ {
		if attempt > 0 {
			t.Sleep(delay)
			delay *= 2
			if delay > t.config.MaxDelay {
				delay = t.config.MaxDelay
			}
		}
		err = op()
		if err == nil || !errors.Is(err, sdk.KindSentinel(sdk.ErrRemoteTransient)) {
			return err
		}
	}
	return err
}

// Create retries transient failures of the wrapped Create.
func (t *RetryingTracker) Create(item *sdk.WorkItem) error {
	return t.retry(func() error { return t.Tracker.Create(item) })
}

// Update retries transient failures of the wrapped Update.
func (t *RetryingTracker) Update(item *sdk.WorkItem) error {
	return t.retry(func() error { return t.Tracker.Update(item) })
}

// AddComment retries transient failures of the wrapped AddComment.
func (t *RetryingTracker) AddComment(id, body, author string) error {
	return t.retry(func() error { return t.Tracker.AddComment(id, body, author) })
}

// WriteMarker retries transient failures of the wrapped WriteMarker.
func (t *RetryingTracker) WriteMarker(m *sdk.ProjectMarker) error {
	return t.retry(func() error { return t.Tracker.WriteMarker(m) })
}
