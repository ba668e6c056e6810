package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	HTTP    HTTPConfig    `yaml:"http"`
	Serial  SerialConfig  `yaml:"serial"`
	Control ControlConfig `yaml:"control"`
	Motors  MotorsConfig  `yaml:"motors"`
	Sim     SimConfig     `yaml:"sim"`
}

type DeviceConfig struct {
	// Name is reported by the discovery endpoint so the mobile app can tell
	// plotters apart on a shared network.
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type HTTPConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type SerialConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// SimConfig drives the built-in gaze simulator, a bench-only packet
// source used when no tracker hardware is attached.
type SimConfig struct {
	Enable     bool          `yaml:"enable"`
	Interval   time.Duration `yaml:"interval"`
	Period     time.Duration `yaml:"period"`
	BlinkEvery int           `yaml:"blink_every"`
}

type GainsConfig struct {
	KP float64 `yaml:"kp"`
	KI float64 `yaml:"ki"`
	KD float64 `yaml:"kd"`
}

type ControlConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Vertical   GainsConfig   `yaml:"vertical"`
	Horizontal GainsConfig   `yaml:"horizontal"`
}

type MotorsConfig struct {
	Enable bool `yaml:"enable"`

	// Direction pins are BCM GPIO numbers; PWM values are sysfs PWM
	// channels (pwm-2chan overlay: channel 0 = GPIO18, channel 1 = GPIO19).
	VerticalForward   int `yaml:"vertical_forward"`
	VerticalReverse   int `yaml:"vertical_reverse"`
	VerticalPWM       int `yaml:"vertical_pwm"`
	HorizontalForward int `yaml:"horizontal_forward"`
	HorizontalReverse int `yaml:"horizontal_reverse"`
	HorizontalPWM     int `yaml:"horizontal_pwm"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if !cfg.HTTP.Enable && !cfg.Serial.Enable && !cfg.Sim.Enable {
		return Config{}, fmt.Errorf("at least one of http.enable, serial.enable or sim.enable is required")
	}

	if cfg.Device.Name == "" {
		cfg.Device.Name = "eyeplotter"
	}
	if cfg.Device.Version == "" {
		cfg.Device.Version = "dev"
	}

	if cfg.HTTP.Enable && cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Serial.Baud < 0 {
		return Config{}, fmt.Errorf("serial.baud must be > 0")
	}

	if cfg.Control.Interval <= 0 {
		cfg.Control.Interval = 5 * time.Millisecond
	}
	// Conservative starting gains from the plotter's original tuning; only
	// fill them in when an axis is left entirely unset.
	if cfg.Control.Vertical == (GainsConfig{}) {
		cfg.Control.Vertical = GainsConfig{KP: 0.001, KI: 0, KD: 0.0001}
	}
	if cfg.Control.Horizontal == (GainsConfig{}) {
		cfg.Control.Horizontal = GainsConfig{KP: 0.001, KI: 0, KD: 0.0001}
	}

	if cfg.Sim.Enable {
		if cfg.Sim.Interval <= 0 {
			cfg.Sim.Interval = 100 * time.Millisecond
		}
		if cfg.Sim.Period <= 0 {
			cfg.Sim.Period = 8 * time.Second
		}
	}

	if cfg.Motors.Enable {
		if cfg.Motors.VerticalForward == 0 {
			cfg.Motors.VerticalForward = 17
		}
		if cfg.Motors.VerticalReverse == 0 {
			cfg.Motors.VerticalReverse = 27
		}
		if cfg.Motors.HorizontalForward == 0 {
			cfg.Motors.HorizontalForward = 22
		}
		if cfg.Motors.HorizontalReverse == 0 {
			cfg.Motors.HorizontalReverse = 23
		}
		// PWM channels default to 0 (vertical) and 1 (horizontal); channel 0
		// is a valid value so no substitution is needed.
		if cfg.Motors.HorizontalPWM == 0 && cfg.Motors.VerticalPWM == 0 {
			cfg.Motors.HorizontalPWM = 1
		}
		if cfg.Motors.VerticalPWM == cfg.Motors.HorizontalPWM {
			return Config{}, fmt.Errorf("motors: vertical_pwm and horizontal_pwm must differ")
		}
	}

	return cfg, nil
}
