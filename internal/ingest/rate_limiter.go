package ingest

import (
	"sync"
	"time"
)

// RateLimiter caps sample submissions per student with a minute-based
// sliding window.
type RateLimiter struct {
	mu       sync.Mutex
	students map[string]*studentLimit
	limit    int
}

// studentLimit tracks the current window for a single student.
type studentLimit struct {
	sampleCount int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter allowing limit samples per student
// per minute.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		students: make(map[string]*studentLimit),
		limit:    limit,
	}
}

// Allow reports whether the student may submit another sample.
func (rl *RateLimiter) Allow(studentID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.students[studentID]
	if !exists {
		rl.students[studentID] = &studentLimit{sampleCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.sampleCount = 1
		limit.windowStart = now
		return true
	}

	if limit.sampleCount >= rl.limit {
		return false
	}

	limit.sampleCount++
	return true
}

// TrackedStudents returns how many students currently hold limiter state.
func (rl *RateLimiter) TrackedStudents() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.students)
}

// Cleanup removes students idle for more than five minutes. Called
// periodically so departed students do not accumulate state.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for studentID, limit := range rl.students {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.students, studentID)
		}
	}
}
