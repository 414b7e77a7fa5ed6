package services

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitService throttles booking commits per student
type RateLimitService struct {
	mu       sync.Mutex
	limiters map[string]*studentLimiter
	config   RateLimitConfig
	now      func() time.Time
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	CommitsPerMinute int           // Sustained commits per student per minute
	Burst            int           // Commits allowed back to back
	IdleTTL          time.Duration // Limiters unused this long are evicted
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		CommitsPerMinute: 10,
		Burst:            3,
		IdleTTL:          30 * time.Minute,
	}
}

type studentLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(config RateLimitConfig) *RateLimitService {
	if config.CommitsPerMinute <= 0 {
		config.CommitsPerMinute = DefaultRateLimitConfig().CommitsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}

	return &RateLimitService{
		limiters: make(map[string]*studentLimiter),
		config:   config,
		now:      time.Now,
	}
}

// CheckCommitRateLimit consumes one commit token for the student, returning a
// *RateLimitError when none is available
func (s *RateLimitService) CheckCommitRateLimit(studentID string) error {
	now := s.now()
	limiter := s.limiterFor(studentID, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return &RateLimitError{Message: "Too many booking attempts", RetryAfter: now}
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		retryAfter := now.Add(delay)
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many booking attempts. Please try again after %s", retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
		}
	}

	return nil
}

func (s *RateLimitService) limiterFor(studentID string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.limiters[studentID]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(s.config.CommitsPerMinute))
		entry = &studentLimiter{limiter: rate.NewLimiter(every, s.config.Burst)}
		s.limiters[studentID] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

// CleanupIdleLimiters drops limiters not used within IdleTTL and returns how many were removed
func (s *RateLimitService) CleanupIdleLimiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.config.IdleTTL)
	removed := 0
	for id, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, id)
			removed++
		}
	}
	return removed
}

// TrackedStudents returns how many students currently hold a limiter
func (s *RateLimitService) TrackedStudents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
