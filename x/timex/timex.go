package timex

import "time"

var boot = time.Now()

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Uptime is the time since the process (or MCU) started.
func Uptime() time.Duration { return time.Since(boot) }

// Ms converts a millisecond count from config into a Duration. Non-positive
// values yield def.
func Ms[T ~int | ~int32 | ~uint32 | ~uint16](ms T, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
