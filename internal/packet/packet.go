// Package packet implements the 8-character directional wire protocol
// spoken by the eye-tracking producer.
//
// Layout: <dirV><ddd><dirH><ddd>, e.g. "U050R100" or the no-eye sentinel
// "N000N000". Magnitudes are literal decimal, unscaled.
package packet

import "fmt"

// Len is the fixed wire size of one packet.
const Len = 8

// Direction is one axis direction letter as it appears on the wire.
type Direction byte

const (
	Up      Direction = 'U'
	Down    Direction = 'D'
	Left    Direction = 'L'
	Right   Direction = 'R'
	Neutral Direction = 'N'
)

// Command is the decoded form of one wire packet.
//
// A Command is only ever constructed from 8 characters that passed full
// positional validation; the zero value is not a valid command.
type Command struct {
	DirV Direction
	MagV int
	DirH Direction
	MagH int
}

// Parse validates and decodes exactly one 8-character packet.
func Parse(s string) (Command, error) {
	return parseBytes([]byte(s))
}

func parseBytes(b []byte) (Command, error) {
	if len(b) != Len {
		return Command{}, fmt.Errorf("packet: length %d, want %d", len(b), Len)
	}
	dv := Direction(b[0])
	if dv != Up && dv != Down && dv != Neutral {
		return Command{}, fmt.Errorf("packet: bad vertical direction %q", b[0])
	}
	mv, err := parseMag(b[1:4])
	if err != nil {
		return Command{}, fmt.Errorf("packet: vertical magnitude: %w", err)
	}
	dh := Direction(b[4])
	if dh != Left && dh != Right && dh != Neutral {
		return Command{}, fmt.Errorf("packet: bad horizontal direction %q", b[4])
	}
	mh, err := parseMag(b[5:8])
	if err != nil {
		return Command{}, fmt.Errorf("packet: horizontal magnitude: %w", err)
	}
	return Command{DirV: dv, MagV: mv, DirH: dh, MagH: mh}, nil
}

func parseMag(b []byte) (int, error) {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// Encode re-emits the exact 8 wire characters the command was decoded from.
func (c Command) Encode() string {
	return fmt.Sprintf("%c%03d%c%03d", byte(c.DirV), c.MagV, byte(c.DirH), c.MagH)
}

// Neutral sentinel substitution: when no eye is detected the producer sends
// "N000N000" and the plotter nudges toward home instead of standing still.
const (
	homeNudgeV = 100.0
	homeNudgeH = 0.0
)

// Errors maps the command to signed per-axis position errors.
//
// Up/Right are positive, Down/Left negative. A both-Neutral command yields
// the fixed home nudge (+100, 0). Neutral on a single axis contributes zero
// error on that axis only.
func (c Command) Errors() (errV, errH float64) {
	if c.DirV == Neutral && c.DirH == Neutral {
		return homeNudgeV, homeNudgeH
	}
	switch c.DirV {
	case Up:
		errV = float64(c.MagV)
	case Down:
		errV = -float64(c.MagV)
	}
	switch c.DirH {
	case Right:
		errH = float64(c.MagH)
	case Left:
		errH = -float64(c.MagH)
	}
	return errV, errH
}
