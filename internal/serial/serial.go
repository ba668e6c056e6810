// Package serial ingests motion-command bytes from the wired link.
//
// The reader runs on its own goroutine with a bounded termios read timeout
// and feeds raw bytes into the control loop's decoder; the loop itself
// never touches the port. Failures reconnect with backoff, they never
// bring down the process.
package serial

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var openSerialFn = openSerial

// Sink receives raw link bytes. Satisfied by packet.Decoder.
type Sink interface {
	Feed(p []byte)
}

type Config struct {
	Enable bool

	// Device is the serial device path. Empty auto-detects the first
	// /dev/ttyACM* or /dev/ttyUSB* present, which is where the producer's
	// USB bridge shows up.
	Device string
	// Baud defaults to 115200, the wired link rate.
	Baud int
}

type Snapshot struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Device    string `json:"device,omitempty"`
	Baud      int    `json:"baud,omitempty"`
	BytesRead uint64 `json:"bytes_read"`
	LastError string `json:"last_error,omitempty"`
}

type Service struct {
	cfg  Config
	sink Sink

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config, sink Sink) *Service {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	s := &Service{cfg: cfg, sink: sink}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return s.last.Load().(Snapshot)
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("serial service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if s.sink == nil {
		return fmt.Errorf("serial sink is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(childCtx)
	}()
	return nil
}

func (s *Service) readLoop(ctx context.Context) {
	backoff := 250 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		device := strings.TrimSpace(s.cfg.Device)
		if device == "" {
			device = autoDetectDevice()
		}
		if device == "" {
			s.setError("serial auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		} else if err := s.readOnce(ctx, device); err != nil && ctx.Err() == nil {
			s.setError(fmt.Sprintf("serial read stopped device=%s: %v", device, err))
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (s *Service) readOnce(ctx context.Context, device string) error {
	f, err := openSerialFn(device, s.cfg.Baud)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	s.mu.Lock()
	// Swap the closer so Close() can interrupt a blocked read.
	s.closer = f
	s.mu.Unlock()

	log.Printf("serial link connected device=%s baud=%d", device, s.cfg.Baud)
	snap := Snapshot{Enabled: true, Connected: true, Device: device, Baud: s.cfg.Baud}
	s.last.Store(snap)

	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, rerr := f.Read(buf)
		if n > 0 {
			s.sink.Feed(buf[:n])
			snap.BytesRead += uint64(n)
			snap.LastError = ""
			s.last.Store(snap)
		}
		if rerr != nil {
			if rerr == io.EOF {
				// Timeout with no bytes available: keep polling.
				continue
			}
			return rerr
		}
	}
}

func (s *Service) setError(msg string) {
	snap := s.Snapshot()
	snap.Connected = false
	snap.LastError = msg
	s.last.Store(snap)
	log.Printf("%s", msg)
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func autoDetectDevice() string {
	// Keep it intentionally tiny and predictable.
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
