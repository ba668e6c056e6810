// Package controller runs the closed-loop drive for both plotter axes.
//
// One Tick decodes at most one motion command, converts it to per-axis
// errors, runs both PID controllers and drives the motors. A remotely
// toggled enable gate forces zero output while disabled; incoming bytes
// are still drained and validated so the link buffer cannot overflow.
package controller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"eyeplotter/internal/packet"
	"eyeplotter/internal/pid"
)

// Driver is the motor capability the loop needs. Tests substitute a
// recording fake for real pin writes.
type Driver interface {
	DriveVertical(duty float64) error
	DriveHorizontal(duty float64) error
	Stop() error
}

// Gains are per-axis PID constants.
type Gains struct {
	KP float64 `yaml:"kp"`
	KI float64 `yaml:"ki"`
	KD float64 `yaml:"kd"`
}

type Config struct {
	// Interval is the control-loop period. Kept in the low milliseconds so
	// command latency stays bounded.
	Interval time.Duration

	Vertical   Gains
	Horizontal Gains
}

// Snapshot is a point-in-time view of the loop for status and logs.
type Snapshot struct {
	Enabled bool `json:"enabled"`

	LastPacket     string  `json:"last_packet,omitempty"`
	LastPacketUTC  string  `json:"last_packet_utc,omitempty"`
	DutyVertical   float64 `json:"duty_vertical"`
	DutyHorizontal float64 `json:"duty_horizontal"`

	Ticks     uint64       `json:"ticks"`
	Link      packet.Stats `json:"link"`
	LastError string       `json:"last_error,omitempty"`
}

type Controller struct {
	cfg Config
	drv Driver
	dec *packet.Decoder

	mu         sync.Mutex
	enabled    bool
	pidV, pidH *pid.Controller
	dutyV      float64
	dutyH      float64
	lastPkt    string
	lastPktAt  time.Time
	ticks      uint64
	lastErr    string
}

func New(drv Driver, cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Millisecond
	}
	// Conservative starting constants carried over from the plotter's
	// original tuning.
	if cfg.Vertical == (Gains{}) {
		cfg.Vertical = Gains{KP: 0.001, KI: 0, KD: 0.0001}
	}
	if cfg.Horizontal == (Gains{}) {
		cfg.Horizontal = Gains{KP: 0.001, KI: 0, KD: 0.0001}
	}
	return &Controller{
		cfg:  cfg,
		drv:  drv,
		dec:  packet.NewDecoder(),
		pidV: pid.New(cfg.Vertical.KP, cfg.Vertical.KI, cfg.Vertical.KD),
		pidH: pid.New(cfg.Horizontal.KP, cfg.Horizontal.KI, cfg.Horizontal.KD),
	}
}

// Decoder exposes the link decoder so transports can feed raw bytes.
func (c *Controller) Decoder() *packet.Decoder { return c.dec }

// FeedPacket validates an 8-character packet string and queues it for the
// next tick. Used by the HTTP eye-data endpoint.
func (c *Controller) FeedPacket(s string) error {
	if _, err := packet.Parse(s); err != nil {
		return err
	}
	c.dec.Feed([]byte(s))
	return nil
}

// Enable opens the gate. The transition resets both axes' PID state so a
// stale integral cannot spike the first output.
func (c *Controller) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	c.enabled = true
	c.pidV.Reset()
	c.pidH.Reset()
}

// Disable closes the gate, zeroes both outputs immediately and resets both
// PID controllers.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.enabled = false
	c.pidV.Reset()
	c.pidH.Reset()
	c.dutyV, c.dutyH = 0, 0
	if err := c.drv.Stop(); err != nil {
		c.lastErr = err.Error()
	}
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Tick runs one control iteration. It never blocks.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++

	// Poll even while disabled: the link must keep draining and
	// resynchronizing, the motors just don't move.
	cmd, ok := c.dec.Poll()

	if !c.enabled {
		c.dutyV, c.dutyH = 0, 0
		if err := c.drv.Stop(); err != nil {
			c.lastErr = err.Error()
		}
		return
	}

	if ok {
		errV, errH := cmd.Errors()
		c.dutyV = c.pidV.Calculate(errV)
		c.dutyH = c.pidH.Calculate(errH)
		c.lastPkt = cmd.Encode()
		c.lastPktAt = now
	}
	// No packet this tick is not an error: hold the last duty so the axes
	// keep converging between camera frames.
	if err := c.drv.DriveVertical(c.dutyV); err != nil {
		c.lastErr = err.Error()
		return
	}
	if err := c.drv.DriveHorizontal(c.dutyH); err != nil {
		c.lastErr = err.Error()
		return
	}
	c.lastErr = ""
}

// Run ticks the loop until ctx is canceled, then stops both motors.
func (c *Controller) Run(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("controller is nil")
	}
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()

	log.Printf("control loop running interval=%s", c.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.dutyV, c.dutyH = 0, 0
			_ = c.drv.Stop()
			c.mu.Unlock()
			return ctx.Err()
		case now := <-t.C:
			c.Tick(now)
		}
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Enabled:        c.enabled,
		LastPacket:     c.lastPkt,
		DutyVertical:   c.dutyV,
		DutyHorizontal: c.dutyH,
		Ticks:          c.ticks,
		Link:           c.dec.Stats(),
		LastError:      c.lastErr,
	}
	if !c.lastPktAt.IsZero() {
		snap.LastPacketUTC = c.lastPktAt.UTC().Format(time.RFC3339Nano)
	}
	return snap
}

// IntegralTerms reports both accumulators, for status verification.
func (c *Controller) IntegralTerms() (v, h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pidV.Integral(), c.pidH.Integral()
}
