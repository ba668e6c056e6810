package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_RequiresATransport(t *testing.T) {
	path := writeTempConfig(t, "device: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "at least one of http.enable, serial.enable or sim.enable is required")
}

func TestLoad_SimDefaults(t *testing.T) {
	path := writeTempConfig(t, "sim:\n  enable: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sim.Interval != 100*time.Millisecond || cfg.Sim.Period != 8*time.Second {
		t.Fatalf("sim=%+v want interval/period defaults", cfg.Sim)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "http:\n  enable: true\nserial:\n  enable: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTP.Listen != ":8080" {
		t.Fatalf("listen=%q want :8080", cfg.HTTP.Listen)
	}
	if cfg.Serial.Baud != 115200 {
		t.Fatalf("baud=%d want 115200", cfg.Serial.Baud)
	}
	if cfg.Control.Interval != 5*time.Millisecond {
		t.Fatalf("interval=%s want 5ms", cfg.Control.Interval)
	}
	if cfg.Control.Vertical.KP != 0.001 || cfg.Control.Vertical.KD != 0.0001 {
		t.Fatalf("vertical gains=%+v want original tuning", cfg.Control.Vertical)
	}
	if cfg.Device.Name != "eyeplotter" || cfg.Device.Version != "dev" {
		t.Fatalf("device=%+v want name/version defaults", cfg.Device)
	}
}

func TestLoad_ExplicitGainsKept(t *testing.T) {
	path := writeTempConfig(t, `
http:
  enable: true
control:
  interval: 10ms
  vertical:
    kp: 0.5
  horizontal:
    kp: 0.25
    ki: 0.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Control.Interval != 10*time.Millisecond {
		t.Fatalf("interval=%s want 10ms", cfg.Control.Interval)
	}
	if cfg.Control.Vertical != (GainsConfig{KP: 0.5}) {
		t.Fatalf("vertical=%+v want kp=0.5 only", cfg.Control.Vertical)
	}
	if cfg.Control.Horizontal != (GainsConfig{KP: 0.25, KI: 0.1}) {
		t.Fatalf("horizontal=%+v want kp=0.25 ki=0.1", cfg.Control.Horizontal)
	}
}

func TestLoad_MotorPinDefaults(t *testing.T) {
	path := writeTempConfig(t, "http:\n  enable: true\nmotors:\n  enable: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	m := cfg.Motors
	if m.VerticalForward != 17 || m.VerticalReverse != 27 {
		t.Fatalf("vertical pins=%d,%d want 17,27", m.VerticalForward, m.VerticalReverse)
	}
	if m.HorizontalForward != 22 || m.HorizontalReverse != 23 {
		t.Fatalf("horizontal pins=%d,%d want 22,23", m.HorizontalForward, m.HorizontalReverse)
	}
	if m.VerticalPWM != 0 || m.HorizontalPWM != 1 {
		t.Fatalf("pwm channels=%d,%d want 0,1", m.VerticalPWM, m.HorizontalPWM)
	}
}

func TestLoad_RejectsSharedPWMChannel(t *testing.T) {
	path := writeTempConfig(t, `
http:
  enable: true
motors:
  enable: true
  vertical_pwm: 1
  horizontal_pwm: 1
`)
	_, err := Load(path)
	requireErrEq(t, err, "motors: vertical_pwm and horizontal_pwm must differ")
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
