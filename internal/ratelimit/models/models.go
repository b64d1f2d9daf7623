package models

import (
	"strings"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the number of seconds a denied caller should wait.
	RetryAfter int
}

// Key builds the counter key for a scope and client address.
func Key(scope, clientIP string) string {
	return "ratelimit:" + scope + ":" + strings.ToLower(strings.TrimSpace(clientIP))
}

// RetryAfterSeconds rounds the time until resetAt up to whole seconds, never below one.
func RetryAfterSeconds(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	secs := int(d / time.Second)
	if d%time.Second > 0 {
		secs++
	}
	if secs < 1 {
		return 1
	}
	return secs
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
