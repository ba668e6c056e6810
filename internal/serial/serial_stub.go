//go:build !linux

package serial

import (
	"fmt"
	"io"
)

func openSerial(path string, baud int) (io.ReadCloser, error) {
	return nil, fmt.Errorf("serial link not supported on this platform")
}
