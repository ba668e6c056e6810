package sim

import (
	"context"
	"math"
	"time"

	"eyeplotter/internal/packet"
)

// GazeSim generates deterministic eye-position packets for bench runs
// without tracker hardware. The simulated gaze sweeps an ellipse around
// screen center, with an optional periodic "no eye" blink that exercises
// the home-return behavior.
type GazeSim struct {
	Period     time.Duration // full sweep, default 8s
	AmpV       int           // peak vertical magnitude, default 180
	AmpH       int           // peak horizontal magnitude, default 180
	BlinkEvery int           // every Nth packet reports no eye, 0 disables
}

// Command returns the gaze offset at the given instant.
//
// The sweep is parameterized purely by wall-clock phase, so two
// simulators with the same settings agree regardless of start time.
func (s GazeSim) Command(now time.Time) packet.Command {
	period := s.Period
	if period <= 0 {
		period = 8 * time.Second
	}
	ampV := s.AmpV
	if ampV <= 0 {
		ampV = 180
	}
	if ampV > 255 {
		ampV = 255
	}
	ampH := s.AmpH
	if ampH <= 0 {
		ampH = 180
	}
	if ampH > 255 {
		ampH = 255
	}

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase

	v := float64(ampV) * math.Sin(w)
	h := float64(ampH) * math.Cos(w)

	cmd := packet.Command{DirV: packet.Up, DirH: packet.Right}
	if v < 0 {
		cmd.DirV = packet.Down
	}
	if h < 0 {
		cmd.DirH = packet.Left
	}
	cmd.MagV = int(math.Round(math.Abs(v)))
	cmd.MagH = int(math.Round(math.Abs(h)))
	return cmd
}

// Sink receives encoded packet bytes, typically the link decoder.
type Sink interface {
	Feed(p []byte)
}

// Run emits one encoded packet per interval until the context is
// canceled. It never returns a non-context error.
func (s GazeSim) Run(ctx context.Context, interval time.Duration, sink Sink) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			n++
			cmd := s.Command(now)
			if s.BlinkEvery > 0 && n%s.BlinkEvery == 0 {
				cmd = packet.Command{DirV: packet.Neutral, DirH: packet.Neutral}
			}
			sink.Feed([]byte(cmd.Encode()))
		}
	}
}
