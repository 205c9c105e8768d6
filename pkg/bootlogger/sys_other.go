//go:build !linux

package bootlogger

import (
	"errors"
	"time"
)

// setUmask is a no-op on non-Linux platforms.
func setUmask(_ int) {}

// systemUptime is not supported on non-Linux platforms.
func systemUptime() (time.Duration, error) {
	return 0, errors.New("uptime not supported on this platform")
}
