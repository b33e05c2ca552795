package util

import "time"

// Days returns the duration of n whole days.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
