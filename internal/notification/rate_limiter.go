package notification

import (
	"golang.org/x/time/rate"
)

// PushRateLimiter caps how many alerts reach the push services so an
// outbreak reported by many farmers at once does not flood operator channels.
type PushRateLimiter struct {
	limiter *rate.Limiter
}

// PushRateLimiterConfig holds configuration for rate limiting.
type PushRateLimiterConfig struct {
	// RequestsPerMinute limits how many alerts can be pushed per minute
	RequestsPerMinute int
	// BurstSize allows bursts up to this many alerts
	BurstSize int
}

// DefaultPushRateLimiterConfig returns the default limits.
func DefaultPushRateLimiterConfig() PushRateLimiterConfig {
	return PushRateLimiterConfig{
		RequestsPerMinute: 30,
		BurstSize:         10,
	}
}

// NewPushRateLimiter creates a token bucket limiter. Non-positive values
// fall back to the defaults.
func NewPushRateLimiter(config PushRateLimiterConfig) *PushRateLimiter {
	def := DefaultPushRateLimiterConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = def.BurstSize
	}

	perSecond := rate.Limit(float64(config.RequestsPerMinute) / 60.0)
	return &PushRateLimiter{limiter: rate.NewLimiter(perSecond, config.BurstSize)}
}

// Allow reports whether one more alert may be sent now.
func (rl *PushRateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Tokens returns the currently available tokens, mostly for tests.
func (rl *PushRateLimiter) Tokens() float64 {
	return rl.limiter.Tokens()
}
