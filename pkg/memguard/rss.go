package memguard

import (
	"fmt"
	"os"
)

// readRSS reads the resident set size in bytes from /proc/self/statm.
// Returns 0 when the file is unavailable (non-Linux platforms).
func readRSS() int64 {
	f, openErr := os.Open("/proc/self/statm")
	if openErr != nil {
		return 0
	}

	defer f.Close()

	var vsize, rss int64

	_, scanErr := fmt.Fscan(f, &vsize)
	if scanErr != nil {
		return 0
	}

	_, scanErr = fmt.Fscan(f, &rss)
	if scanErr != nil {
		return 0
	}

	return rss * int64(os.Getpagesize())
}
