//go:build linux && (arm || arm64)

package motor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openDirPin claims the given BCM GPIO as a digital output via the Linux
// GPIO character device (libgpiod). These pins feed the H-bridge direction
// inputs, so they start low (coast).
func openDirPin(pin int) (DirPin, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("motor: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO17", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	// Try likely chips first; Pi 5 kernel variants can expose header GPIOs
	// on gpiochip0 and sometimes additional chips exist.
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("eyeplotter-motor"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodPin{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("motor: gpio line %q not found (or busy)", lineName)
}

type gpiodPin struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodPin) Set(high bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("motor: gpio pin not initialized")
	}
	v := 0
	if high {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodPin) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	// Graceful shutdown: drive the bridge input low.
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
