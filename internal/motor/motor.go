// Package motor drives the plotter's two DC motors through H-bridges.
//
// Each axis has two direction inputs and one PWM-capable enable input.
// Hardware access is hidden behind small pin interfaces so tests can
// substitute recording fakes for real pin writes.
package motor

import (
	"fmt"
	"math"
)

// MaxDuty is the 8-bit PWM ceiling.
const MaxDuty = 255

// DirPin is one H-bridge direction input.
type DirPin interface {
	Set(high bool) error
	Close() error
}

// PWMPin is a PWM-capable enable input taking an 8-bit duty (0..255).
type PWMPin interface {
	SetDuty8(v int) error
	Close() error
}

// Axis maps one signed duty onto an H-bridge.
//
// duty >= 0 sets forward high / reverse low; duty < 0 the inverse. The PWM
// magnitude is clamp(|duty|, 0, 255). Writes are fire-and-forget side
// effects on hardware; errors are reported but leave no state to unwind.
type Axis struct {
	fwd DirPin
	rev DirPin
	pwm PWMPin
}

func NewAxis(fwd, rev DirPin, pwm PWMPin) *Axis {
	return &Axis{fwd: fwd, rev: rev, pwm: pwm}
}

func (a *Axis) Drive(duty float64) error {
	forward := duty >= 0
	if err := a.fwd.Set(forward); err != nil {
		return fmt.Errorf("motor: set forward pin: %w", err)
	}
	if err := a.rev.Set(!forward); err != nil {
		return fmt.Errorf("motor: set reverse pin: %w", err)
	}
	mag := int(math.Round(math.Abs(duty)))
	if mag > MaxDuty {
		mag = MaxDuty
	}
	if err := a.pwm.SetDuty8(mag); err != nil {
		return fmt.Errorf("motor: set pwm: %w", err)
	}
	return nil
}

// Stop writes zero PWM. Direction pins are left as-is.
func (a *Axis) Stop() error {
	if err := a.pwm.SetDuty8(0); err != nil {
		return fmt.Errorf("motor: set pwm: %w", err)
	}
	return nil
}

func (a *Axis) Close() error {
	// Leave the bridge disabled before releasing pins.
	_ = a.pwm.SetDuty8(0)
	err := a.pwm.Close()
	if cerr := a.fwd.Close(); err == nil {
		err = cerr
	}
	if cerr := a.rev.Close(); err == nil {
		err = cerr
	}
	return err
}

// PinConfig names the BCM GPIOs and sysfs PWM channels for both axes.
type PinConfig struct {
	VerticalForward int `yaml:"vertical_forward"`
	VerticalReverse int `yaml:"vertical_reverse"`
	VerticalPWM     int `yaml:"vertical_pwm"`

	HorizontalForward int `yaml:"horizontal_forward"`
	HorizontalReverse int `yaml:"horizontal_reverse"`
	HorizontalPWM     int `yaml:"horizontal_pwm"`
}

// Driver owns both axes.
type Driver struct {
	vert *Axis
	horz *Axis
}

func NewDriver(vert, horz *Axis) *Driver {
	return &Driver{vert: vert, horz: horz}
}

// Open claims all six pins described by cfg using the platform backends.
func Open(cfg PinConfig) (*Driver, error) {
	var pins []interface{ Close() error }
	fail := func(err error) (*Driver, error) {
		for _, p := range pins {
			_ = p.Close()
		}
		return nil, err
	}

	vf, err := openDirPinFn(cfg.VerticalForward)
	if err != nil {
		return fail(err)
	}
	pins = append(pins, vf)
	vr, err := openDirPinFn(cfg.VerticalReverse)
	if err != nil {
		return fail(err)
	}
	pins = append(pins, vr)
	vp, err := openPWMPinFn(cfg.VerticalPWM)
	if err != nil {
		return fail(err)
	}
	pins = append(pins, vp)

	hf, err := openDirPinFn(cfg.HorizontalForward)
	if err != nil {
		return fail(err)
	}
	pins = append(pins, hf)
	hr, err := openDirPinFn(cfg.HorizontalReverse)
	if err != nil {
		return fail(err)
	}
	pins = append(pins, hr)
	hp, err := openPWMPinFn(cfg.HorizontalPWM)
	if err != nil {
		return fail(err)
	}

	return NewDriver(NewAxis(vf, vr, vp), NewAxis(hf, hr, hp)), nil
}

func (d *Driver) DriveVertical(duty float64) error   { return d.vert.Drive(duty) }
func (d *Driver) DriveHorizontal(duty float64) error { return d.horz.Drive(duty) }

func (d *Driver) Stop() error {
	err := d.vert.Stop()
	if herr := d.horz.Stop(); err == nil {
		err = herr
	}
	return err
}

func (d *Driver) Close() error {
	err := d.vert.Close()
	if herr := d.horz.Close(); err == nil {
		err = herr
	}
	return err
}
