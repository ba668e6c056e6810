// Package pid implements the per-axis position controller for the plotter.
package pid

import "time"

// DefaultOutputLimit matches 8-bit PWM drive.
const DefaultOutputLimit = 255

// minDT floors the time step so a burst of back-to-back calls cannot blow
// up the derivative term.
const minDT = time.Millisecond

var nowFn = time.Now

// Controller is a discretized PID controller over wall-clock time.
//
// The integral accumulates trapezoidally and is clamped to the output
// limit independently of the final output clamp, which bounds windup even
// before the output saturates.
//
// Not safe for concurrent use.
type Controller struct {
	kp, ki, kd float64
	limit      float64

	integral  float64
	lastError float64
	lastAt    time.Time
}

func New(kp, ki, kd float64) *Controller {
	return &Controller{kp: kp, ki: ki, kd: kd, limit: DefaultOutputLimit, lastAt: nowFn()}
}

func (c *Controller) SetOutputLimit(limit float64) {
	if limit > 0 {
		c.limit = limit
	}
}

// Calculate advances the controller by one step and returns the signed duty.
func (c *Controller) Calculate(err float64) float64 {
	now := nowFn()
	dt := now.Sub(c.lastAt)
	if dt < minDT {
		dt = minDT
	}
	sec := dt.Seconds()

	derivative := (err - c.lastError) / sec
	c.integral += (err + c.lastError) / 2 * sec
	c.integral = clamp(c.integral, -c.limit, c.limit)

	c.lastError = err
	c.lastAt = now

	return clamp(c.kp*err+c.ki*c.integral+c.kd*derivative, -c.limit, c.limit)
}

// Reset zeroes the accumulated state and restamps the clock. Callers must
// reset whenever control resumes after being disabled; a stale integral
// would otherwise spike the first output.
func (c *Controller) Reset() {
	c.integral = 0
	c.lastError = 0
	c.lastAt = nowFn()
}

// Integral reports the current accumulator, for status and tests.
func (c *Controller) Integral() float64 {
	return c.integral
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
