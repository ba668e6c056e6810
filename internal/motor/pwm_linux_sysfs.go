//go:build linux && (arm || arm64)

package motor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// sysfsPWM drives one hardware PWM channel via /sys/class/pwm.
//
// On Raspberry Pi this requires `dtoverlay=pwm-2chan` (or equivalent) so
// the enable pins are exposed as PWM channels. The sysfs backend is chosen
// for Pi 3/4/5 compatibility; Pi 5 often breaks memory-mapped GPIO
// libraries.
//
// The 8-bit duty matches the Arduino analogWrite() range the bridge was
// originally driven with; the output frequency is fixed at pwmFrequencyHz.

const pwmFrequencyHz = 1000

var pwmSysfsBase = "/sys/class/pwm"

type sysfsPWM struct {
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int

	periodNS uint64
	enabled  bool
}

func openPWM(channel int) (PWMPin, error) {
	if channel < 0 {
		return nil, fmt.Errorf("motor: invalid pwm channel %d", channel)
	}

	chipPath, err := findPWMChip(channel)
	if err != nil {
		return nil, err
	}

	d := &sysfsPWM{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}

	if err := d.ensureExported(); err != nil {
		return nil, err
	}

	d.periodNS = 1_000_000_000 / pwmFrequencyHz
	// Disable before changing the period (common sysfs requirement).
	_ = d.writeBool("enable", false)
	if err := d.writeUint("period", d.periodNS); err != nil {
		return nil, fmt.Errorf("motor: set pwm period: %w", err)
	}
	if err := d.writeUint("duty_cycle", 0); err != nil {
		return nil, fmt.Errorf("motor: zero pwm duty: %w", err)
	}
	if err := d.writeBool("enable", true); err != nil {
		return nil, fmt.Errorf("motor: enable pwm: %w", err)
	}
	d.enabled = true
	return d, nil
}

func findPWMChip(channel int) (string, error) {
	base := pwmSysfsBase
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("motor: read %s: %w", base, err)
	}

	// Prefer pwmchip0 if present (common on Pi). Note: pwmchipN entries are
	// commonly symlinks, not directories.
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			seen[e.Name()] = true
		}
	}
	candidates := make([]string, 0, len(seen))
	for _, name := range []string{"pwmchip0", "pwmchip1", "pwmchip2"} {
		if seen[name] {
			candidates = append(candidates, name)
			delete(seen, name)
		}
	}
	for name := range seen {
		candidates = append(candidates, name)
	}

	for _, name := range candidates {
		chip := filepath.Join(base, name)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil {
			continue
		}
		if channel < n {
			return chip, nil
		}
	}
	return "", fmt.Errorf("motor: no sysfs pwmchip with channel %d (is the pwm overlay enabled?)", channel)
}

func (d *sysfsPWM) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(d.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(d.channel)); err != nil {
		// If already exported by someone else, ignore.
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("motor: export pwm: %w", err)
	}

	// Wait briefly for the sysfs node to appear.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(d.pwmPath); err != nil {
		return fmt.Errorf("motor: pwm path not created after export: %w", err)
	}
	return nil
}

func (d *sysfsPWM) SetDuty8(v int) error {
	if v < 0 {
		v = 0
	} else if v > MaxDuty {
		v = MaxDuty
	}

	duty := uint64(math.Round(float64(d.periodNS) * float64(v) / MaxDuty))
	if duty > d.periodNS {
		duty = d.periodNS
	}
	if err := d.writeUint("duty_cycle", duty); err != nil {
		return err
	}
	if !d.enabled {
		_ = d.writeBool("enable", true)
		d.enabled = true
	}
	return nil
}

func (d *sysfsPWM) Close() error {
	// Leave the motor stopped.
	_ = d.writeUint("duty_cycle", 0)
	_ = d.writeBool("enable", false)
	d.enabled = false
	return nil
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

func writeSysfs(path string, value string) error {
	// Use O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation flags even when mode bits allow writes. Also, immediately
	// after exporting a PWM channel, udev may adjust permissions
	// asynchronously, leaving a short window where open() returns EACCES or
	// ENOENT even though the steady-state permissions are correct.
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		if werr != nil {
			lastErr = werr
		} else {
			lastErr = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		if werr != nil && cerr != nil {
			return errors.Join(werr, cerr)
		}
		if werr != nil {
			return werr
		}
		return cerr
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
