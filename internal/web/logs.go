package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogBuffer keeps the tail of the process log in memory so the UI can show
// recent activity without shell access to the device. It implements
// io.Writer and is meant to be wired as a log tee in main.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial string
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines}
}

// Write implements io.Writer, splitting the stream into lines. A trailing
// fragment without a newline is held back until the rest arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.partial + string(p)
	b.partial = ""

	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			b.partial = data
			break
		}
		b.appendLineLocked(data[:i])
		data = data[i+1:]
	}
	return len(p), nil
}

func (b *LogBuffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = b.lines[over:]
		b.dropped += uint64(over)
	}
}

func (b *LogBuffer) Snapshot(tail int) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped = b.dropped
	if tail <= 0 {
		tail = 200
	}
	if tail > len(b.lines) {
		tail = len(b.lines)
	}
	start := len(b.lines) - tail
	lines = append([]string(nil), b.lines[start:]...)
	return lines, dropped
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}

		tail := 200
		if s := strings.TrimSpace(r.URL.Query().Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}

		lines, dropped := b.Snapshot(tail)
		resp := LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		}

		bts, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(bts)
		_, _ = w.Write([]byte("\n"))
	})
}
