//go:build windows

package odinctl

import "math"

// processOSSpecificInitialization is a no-op on Windows, which has no
// per-process file descriptor rlimit to raise.
func processOSSpecificInitialization() (int, error) {
	return math.MaxInt32, nil
}
