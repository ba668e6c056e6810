//go:build !linux || (!arm && !arm64)

package motor

import "fmt"

// Stub implementation for non-Linux and/or non-ARM platforms.
func openDirPin(pin int) (DirPin, error) {
	return nil, fmt.Errorf("motor: gpio unsupported on this platform")
}
