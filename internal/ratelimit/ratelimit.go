package ratelimit

import (
	"sync"
	"time"
)

// window is the request history of one client
type window struct {
	minute []time.Time
	hour   []time.Time
	day    []time.Time
}

// RateLimiter enforces sliding-window limits per client key
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	requestsPerDay    int
	enabled           bool

	clients map[string]*window
	mu      sync.Mutex
	now     func() time.Time
}

// NewRateLimiter creates a limiter. A limit of 0 disables that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		requestsPerDay:    requestsPerDay,
		enabled:           enabled,
		clients:           make(map[string]*window),
		now:               time.Now,
	}
}

// Allow records a request for key and reports whether it is within limits.
// Rejected requests are not recorded.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.clients[key]
	if w == nil {
		w = &window{}
		rl.clients[key] = w
	}
	w.trim(now)

	if rl.requestsPerMinute > 0 && len(w.minute) >= rl.requestsPerMinute {
		return false
	}
	if rl.requestsPerHour > 0 && len(w.hour) >= rl.requestsPerHour {
		return false
	}
	if rl.requestsPerDay > 0 && len(w.day) >= rl.requestsPerDay {
		return false
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	w.day = append(w.day, now)
	return true
}

// RetryAfter returns how long key must wait before its next request is allowed
func (rl *RateLimiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.clients[key]
	if w == nil {
		return 0
	}
	now := rl.now()
	w.trim(now)

	var wait time.Duration
	check := func(times []time.Time, limit int, span time.Duration) {
		if limit <= 0 || len(times) < limit {
			return
		}
		// The oldest request that keeps the window full
		if d := times[len(times)-limit].Add(span).Sub(now); d > wait {
			wait = d
		}
	}
	check(w.minute, rl.requestsPerMinute, time.Minute)
	check(w.hour, rl.requestsPerHour, time.Hour)
	check(w.day, rl.requestsPerDay, 24*time.Hour)
	return wait
}

// Sweep drops clients whose day window is empty
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, w := range rl.clients {
		w.trim(now)
		if len(w.day) == 0 {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

func (w *window) trim(now time.Time) {
	w.minute = filterTimes(w.minute, now.Add(-time.Minute))
	w.hour = filterTimes(w.hour, now.Add(-time.Hour))
	w.day = filterTimes(w.day, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// GetStats returns the usage of one client
func (rl *RateLimiter) GetStats(key string) Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.clients[key]
	if w == nil {
		w = &window{}
	}
	w.trim(rl.now())

	return Stats{
		Enabled:             true,
		Clients:             len(rl.clients),
		RequestsLastMinute:  len(w.minute),
		RequestsLastHour:    len(w.hour),
		RequestsLastDay:     len(w.day),
		LimitPerMinute:      rl.requestsPerMinute,
		LimitPerHour:        rl.requestsPerHour,
		LimitPerDay:         rl.requestsPerDay,
		RemainingThisMinute: remaining(rl.requestsPerMinute, len(w.minute)),
		RemainingThisHour:   remaining(rl.requestsPerHour, len(w.hour)),
		RemainingThisDay:    remaining(rl.requestsPerDay, len(w.day)),
	}
}

// Stats contains rate limiter statistics for one client
type Stats struct {
	Enabled             bool `json:"enabled"`
	Clients             int  `json:"clients"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	RequestsLastDay     int  `json:"requests_last_day"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	LimitPerHour        int  `json:"limit_per_hour"`
	LimitPerDay         int  `json:"limit_per_day"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
	RemainingThisDay    int  `json:"remaining_this_day"`
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.clients = make(map[string]*window)
}

func remaining(limit, used int) int {
	if limit <= 0 || used >= limit {
		return 0
	}
	return limit - used
}
