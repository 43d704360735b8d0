package crm

import (
	"errors"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Settings holds the tunables of the CRM services
type Settings struct {
	SweepBatchSize       int
	ReferralCodeAttempts int
	ReferralMaxDepth     int
	FollowUpDelay        time.Duration
	CallbackDelay        time.Duration
	WebhookDedupTTL      time.Duration
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		SweepBatchSize:       500,
		ReferralCodeAttempts: 10,
		ReferralMaxDepth:     crm.DefaultMaxReferralDepth,
		FollowUpDelay:        72 * time.Hour,
		CallbackDelay:        2 * time.Hour,
		WebhookDedupTTL:      24 * time.Hour,
	}
}

type options struct {
	settings Settings
	metrics  Metrics
	clock    func() time.Time
}

// Option configures a CRM service
type Option func(*options)

// WithSettings overrides the default settings. Zero fields keep their default.
func WithSettings(s Settings) Option {
	return func(o *options) {
		d := DefaultSettings()
		if s.SweepBatchSize <= 0 {
			s.SweepBatchSize = d.SweepBatchSize
		}
		if s.ReferralCodeAttempts <= 0 {
			s.ReferralCodeAttempts = d.ReferralCodeAttempts
		}
		if s.ReferralMaxDepth <= 0 {
			s.ReferralMaxDepth = d.ReferralMaxDepth
		}
		if s.FollowUpDelay <= 0 {
			s.FollowUpDelay = d.FollowUpDelay
		}
		if s.CallbackDelay <= 0 {
			s.CallbackDelay = d.CallbackDelay
		}
		if s.WebhookDedupTTL <= 0 {
			s.WebhookDedupTTL = d.WebhookDedupTTL
		}
		o.settings = s
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		settings: DefaultSettings(),
		metrics:  NoopMetrics{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// withConflictRetry runs op and, if it fails with a concurrency conflict,
// runs it exactly once more. A second conflict is returned to the caller.
func withConflictRetry(logger *zap.Logger, metrics Metrics, name string, op func() error) error {
	err := op()
	if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
		return err
	}

	logger.Warn("concurrency conflict, retrying once", zap.String("operation", name), zap.Error(err))
	metrics.ConflictRetried(name)
	return op()
}
