// Package biztime centralises time handling. Storage and transport use UTC;
// the configured business timezone is only used for scheduling and display.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

const DefaultTimezone = "UTC"

var (
	bizLocation     *time.Location
	bizLocationOnce sync.Once
	initErr         error
)

// Init sets the business timezone once. An empty tz means UTC.
func Init(tz string) error {
	bizLocationOnce.Do(func() {
		if tz == "" {
			tz = DefaultTimezone
		}
		bizLocation, initErr = time.LoadLocation(tz)
	})
	return initErr
}

// Location returns the business timezone, defaulting to UTC when Init was never called.
func Location() *time.Location {
	if err := Init(""); err != nil {
		panic(fmt.Sprintf("biztime: failed to auto-initialize: %v", err))
	}
	return bizLocation
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatAPI formats t as RFC 3339 in UTC for API responses.
func FormatAPI(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
