// krabbel/utils/system.go
package utils

import (
	"time"
)

// Now returns the current time. Tests may replace it.
var Now = time.Now

// NowMillis returns the current time as Unix milliseconds, the unit stored on posts.
func NowMillis() int64 {
	return Now().UnixMilli()
}

// FromMillis converts a stored timestamp back into a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
