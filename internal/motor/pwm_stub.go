//go:build !linux || (!arm && !arm64)

package motor

import "fmt"

// Stub implementation for non-Linux and/or non-ARM platforms.
func openPWM(channel int) (PWMPin, error) {
	return nil, fmt.Errorf("motor: pwm unsupported on this platform")
}
