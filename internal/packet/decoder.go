package packet

import "sync"

// DefaultBufferCap bounds the decoder's byte buffer. The producer emits one
// packet per camera frame, so anything beyond a few packets of backlog is
// stale and safe to shed.
const DefaultBufferCap = 256

// Decoder accumulates raw link bytes and yields validated Commands.
//
// Poll is non-blocking: with fewer than 8 bytes buffered it changes nothing
// and reports no command. A validation failure drains the whole buffer so a
// single corrupted byte cannot misalign every subsequent read.
//
// Safe for concurrent use: transports Feed from their own goroutines while
// the control loop Polls.
type Decoder struct {
	mu  sync.Mutex
	buf []byte
	cap int

	decoded   uint64
	malformed uint64
	dropped   uint64
}

// Stats is a point-in-time view of decoder counters.
type Stats struct {
	Buffered  int    `json:"buffered"`
	Decoded   uint64 `json:"decoded"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
}

func NewDecoder() *Decoder {
	return &Decoder{cap: DefaultBufferCap}
}

// Feed appends raw bytes from a transport. When the buffer would exceed its
// cap the oldest bytes are shed first.
func (d *Decoder) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = append(d.buf, p...)
	if over := len(d.buf) - d.cap; over > 0 {
		d.buf = d.buf[over:]
		d.dropped += uint64(over)
	}
}

// Poll consumes and returns the next command if one is available.
//
// It reports false both for "fewer than 8 bytes buffered" and for a
// malformed head-of-buffer; the latter also drains the buffer.
func (d *Decoder) Poll() (Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buf) < Len {
		return Command{}, false
	}
	cmd, err := parseBytes(d.buf[:Len])
	if err != nil {
		// Resynchronize: drop everything rather than guess at alignment.
		d.buf = d.buf[:0]
		d.malformed++
		return Command{}, false
	}
	d.buf = d.buf[Len:]
	d.decoded++
	return cmd, true
}

func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Buffered:  len(d.buf),
		Decoded:   d.decoded,
		Malformed: d.malformed,
		Dropped:   d.dropped,
	}
}
