//go:build linux

package bootlogger

import (
	"time"

	"golang.org/x/sys/unix"
)

// setUmask sets the process file mode creation mask.
func setUmask(mask int) {
	unix.Umask(mask)
}

// systemUptime returns the time since boot.
func systemUptime() (time.Duration, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return time.Duration(info.Uptime) * time.Second, nil
}
