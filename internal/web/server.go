// Package web is the plotter's WiFi command server.
//
// It dispatches start/stop/status/discovery/eye-data requests into the
// control loop. Responses are single-shot: permissive CORS for the mobile
// and browser UIs, connection closed after each response, no keep-alive.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"eyeplotter/internal/controller"
	"eyeplotter/internal/serial"
	"eyeplotter/internal/wifi"
)

// Controller is the control-loop surface the command server drives.
// Implementations must be safe to call concurrently.
type Controller interface {
	Enable()
	Disable()
	Enabled() bool
	FeedPacket(pkt string) error
	Snapshot() controller.Snapshot
}

// DeviceInfo is reported by the discovery endpoint.
type DeviceInfo struct {
	Name    string
	Version string
}

// Deps wires the handler's collaborators. WiFi, Serial and Logs are
// optional; absent probes degrade the corresponding status fields.
type Deps struct {
	Controller Controller
	Device     DeviceInfo
	WiFi       func() wifi.Status
	Serial     func() serial.Snapshot
	Logs       *LogBuffer
}

func Handler(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		d.Controller.Enable()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "started",
			"enabled": true,
		})
	})

	mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		d.Controller.Disable()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "stopped",
			"enabled": false,
		})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		enabled := d.Controller.Enabled()
		status := "disabled"
		if enabled {
			status = "enabled"
		}
		wifiUp := false
		if d.WiFi != nil {
			wifiUp = d.WiFi().Connected
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  status,
			"enabled": enabled,
			"wifi":    wifiUp,
		})
	})

	mux.HandleFunc("/api/discover", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"device":       d.Device.Name,
			"type":         "eye-tracker-plotter",
			"version":      d.Device.Version,
			"capabilities": []string{"start", "stop", "status", "eye-data"},
		})
	})

	mux.HandleFunc("/api/eye-data", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var body struct {
			Packet string `json:"packet"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed json body"})
			return
		}
		if err := d.Controller.FeedPacket(body.Packet); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "processed"})
	})

	// Richer diagnostics than the fixed /status shape; used by the web UI
	// and by bring-up scripts.
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		resp := stateResponse{
			Service: "eyeplotter",
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Control: d.Controller.Snapshot(),
		}
		if d.WiFi != nil {
			st := d.WiFi()
			resp.WiFi = &st
		}
		if d.Serial != nil {
			st := d.Serial()
			resp.Serial = &st
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.Handle("/api/about", AboutHandler())

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		snap := d.Controller.Snapshot()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body>", d.Device.Name)
		_, _ = fmt.Fprintf(w, "<h1>%s</h1>", d.Device.Name)
		_, _ = fmt.Fprintf(w, "<p>Eye-tracker plotter controller. See <a href=\"/api/state\">/api/state</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>enabled=%v\nlast_packet=%s\nduty_v=%.1f\nduty_h=%.1f</pre>",
			snap.Enabled, snap.LastPacket, snap.DutyVertical, snap.DutyHorizontal,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return withCORS(mux)
}

type stateResponse struct {
	Service string              `json:"service"`
	NowUTC  string              `json:"now_utc"`
	Control controller.Snapshot `json:"control"`
	WiFi    *wifi.Status        `json:"wifi,omitempty"`
	Serial  *serial.Snapshot    `json:"serial,omitempty"`
}

// withCORS adds permissive CORS headers to every response, answers
// preflight requests, and marks connections for close so each command is a
// fresh connection.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Serve runs the command server until ctx is canceled.
func Serve(ctx context.Context, listenAddr string, d Deps) error {
	if d.Controller == nil {
		return fmt.Errorf("web: controller is nil")
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}
	// One request per connection, matching the original firmware's server.
	srv.SetKeepAlivesEnabled(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
