// Package ratelimit implements sliding-window attempt limiting keyed by arbitrary strings.
//
// Each key holds the timestamps of recent attempts. A call prunes timestamps that are at least one
// window old, denies without recording when the remaining count has reached the maximum, and
// otherwise records the current instant.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether another attempt is allowed for a key within a sliding window.
type Limiter interface {
	// Allow reports whether an attempt is permitted and records it when it is.
	Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error)
	// RemainingTime reports how long until the oldest attempt in the window expires.
	RemainingTime(ctx context.Context, key string, window time.Duration) (time.Duration, error)
}

// Clock supplies the current time; tests substitute a controllable implementation.
type Clock func() time.Time

// ContactRequestKey is the limiter key for permission requests issued by requesterID.
func ContactRequestKey(requesterID string) string {
	return "contact_request_" + requesterID
}

// ProfileAccessKey is the limiter key for secure profile reads by a viewer.
// Anonymous viewers are keyed by client address.
func ProfileAccessKey(viewerID, clientIP string) string {
	if viewerID != "" {
		return "profile_access_" + viewerID
	}
	return "profile_access_ip:" + clientIP
}

func remaining(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	left := oldest.Add(window).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
