package rates

import "time"

// IsFresh reports whether an observation made at updatedAt is still usable
// under the given TTL. An age exactly equal to the TTL counts as stale.
func IsFresh(updatedAt time.Time, ttl time.Duration) bool {
	return IsFreshAt(time.Now(), updatedAt, ttl)
}

func IsFreshAt(now, updatedAt time.Time, ttl time.Duration) bool {
	if updatedAt.IsZero() {
		return false
	}
	return now.Sub(updatedAt) < ttl
}
