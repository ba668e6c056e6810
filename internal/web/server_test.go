package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"eyeplotter/internal/controller"
	"eyeplotter/internal/wifi"
)

type fakeDriver struct {
	mu    sync.Mutex
	vDuty []float64
	hDuty []float64
	stops int
}

func (d *fakeDriver) DriveVertical(duty float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vDuty = append(d.vDuty, duty)
	return nil
}

func (d *fakeDriver) DriveHorizontal(duty float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hDuty = append(d.hDuty, duty)
	return nil
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func newTestServer(t *testing.T, drv controller.Driver, wifiUp bool) (*httptest.Server, *controller.Controller) {
	t.Helper()
	ctrl := controller.New(drv, controller.Config{
		Interval:   time.Millisecond,
		Vertical:   controller.Gains{KP: 1},
		Horizontal: controller.Gains{KP: 1},
	})
	ts := httptest.NewServer(Handler(Deps{
		Controller: ctrl,
		Device:     DeviceInfo{Name: "bench-plotter", Version: "1.2.0"},
		WiFi:       func() wifi.Status { return wifi.Status{Connected: wifiUp} },
	}))
	t.Cleanup(ts.Close)
	return ts, ctrl
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

type statusBody struct {
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
	Wifi    bool   `json:"wifi"`
}

func TestStartStopStatus(t *testing.T) {
	ts, ctrl := newTestServer(t, &fakeDriver{}, true)

	var st statusBody
	getJSON(t, ts.URL+"/status", &st)
	if st.Status != "disabled" || st.Enabled || !st.Wifi {
		t.Fatalf("initial status=%+v want disabled with wifi", st)
	}

	var started struct {
		Status  string `json:"status"`
		Enabled bool   `json:"enabled"`
	}
	getJSON(t, ts.URL+"/start", &started)
	if started.Status != "started" || !started.Enabled {
		t.Fatalf("start response=%+v", started)
	}
	if !ctrl.Enabled() {
		t.Fatalf("controller not enabled after /start")
	}

	getJSON(t, ts.URL+"/status", &st)
	if st.Status != "enabled" || !st.Enabled {
		t.Fatalf("status after start=%+v", st)
	}

	var stopped struct {
		Status  string `json:"status"`
		Enabled bool   `json:"enabled"`
	}
	getJSON(t, ts.URL+"/stop", &stopped)
	if stopped.Status != "stopped" || stopped.Enabled {
		t.Fatalf("stop response=%+v", stopped)
	}
	getJSON(t, ts.URL+"/status", &st)
	if st.Enabled {
		t.Fatalf("status after stop=%+v want disabled", st)
	}
}

func TestStop_ResetsIntegralsAndZerosOutput(t *testing.T) {
	drv := &fakeDriver{}
	ts, ctrl := newTestServer(t, drv, false)

	getJSON(t, ts.URL+"/start", nil)
	if err := ctrl.FeedPacket("U100R100"); err != nil {
		t.Fatalf("FeedPacket: %v", err)
	}
	ctrl.Tick(time.Now())

	getJSON(t, ts.URL+"/stop", nil)

	if v, h := ctrl.IntegralTerms(); v != 0 || h != 0 {
		t.Fatalf("integrals=(%v,%v) want (0,0) after /stop", v, h)
	}

	// Subsequent packets still decode but yield zero PWM.
	if err := ctrl.FeedPacket("U050R100"); err != nil {
		t.Fatalf("FeedPacket: %v", err)
	}
	before := len(drv.vDuty)
	ctrl.Tick(time.Now())
	if len(drv.vDuty) != before {
		t.Fatalf("disabled tick drove motors")
	}
	if st := ctrl.Snapshot(); st.Link.Decoded != 2 {
		t.Fatalf("decoded=%d want 2", st.Link.Decoded)
	}
}

func TestDiscover(t *testing.T) {
	ts, _ := newTestServer(t, &fakeDriver{}, false)

	var disc struct {
		Device       string   `json:"device"`
		Type         string   `json:"type"`
		Version      string   `json:"version"`
		Capabilities []string `json:"capabilities"`
	}
	resp := getJSON(t, ts.URL+"/api/discover", &disc)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if disc.Device != "bench-plotter" || disc.Type != "eye-tracker-plotter" || disc.Version != "1.2.0" {
		t.Fatalf("discover=%+v", disc)
	}
	if len(disc.Capabilities) == 0 {
		t.Fatalf("discover reports no capabilities")
	}
}

func TestEyeData(t *testing.T) {
	ts, ctrl := newTestServer(t, &fakeDriver{}, false)

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.URL+"/api/eye-data", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := post("{not json"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed json: code=%d want 400", resp.StatusCode)
	}
	if resp := post(`{"packet":"X050R100"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid packet: code=%d want 400", resp.StatusCode)
	}
	if resp := post(`{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing packet field: code=%d want 400", resp.StatusCode)
	}
	// Control-loop state is untouched by rejected bodies.
	if st := ctrl.Snapshot(); st.Link.Buffered != 0 {
		t.Fatalf("rejected body reached the decoder: %+v", st.Link)
	}

	resp := post(`{"packet":"U050R100"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid packet: code=%d want 200", resp.StatusCode)
	}
	var ok struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok.Status != "processed" {
		t.Fatalf("status=%q want processed", ok.Status)
	}
	if st := ctrl.Snapshot(); st.Link.Buffered != 8 {
		t.Fatalf("buffered=%d want 8", st.Link.Buffered)
	}
}

func TestCORSHeadersAndPreflight(t *testing.T) {
	ts, _ := newTestServer(t, &fakeDriver{}, false)

	resp := getJSON(t, ts.URL+"/status", nil)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin=%q want *", got)
	}

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/start", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	pre, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer pre.Body.Close()
	if pre.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight code=%d want 204", pre.StatusCode)
	}
	if got := pre.Header.Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatalf("preflight missing allow-methods")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, &fakeDriver{}, false)

	resp, err := http.Post(ts.URL+"/start", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("code=%d want 405", resp.StatusCode)
	}

	get, err := http.Get(ts.URL + "/api/eye-data")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer get.Body.Close()
	if get.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("code=%d want 405", get.StatusCode)
	}
}

func TestAPIState(t *testing.T) {
	ts, ctrl := newTestServer(t, &fakeDriver{}, true)
	getJSON(t, ts.URL+"/start", nil)
	if err := ctrl.FeedPacket("D200L075"); err != nil {
		t.Fatalf("FeedPacket: %v", err)
	}
	ctrl.Tick(time.Now())

	var state struct {
		Service string              `json:"service"`
		Control controller.Snapshot `json:"control"`
	}
	getJSON(t, ts.URL+"/api/state", &state)
	if state.Service != "eyeplotter" {
		t.Fatalf("service=%q", state.Service)
	}
	if !state.Control.Enabled || state.Control.LastPacket != "D200L075" {
		t.Fatalf("control=%+v", state.Control)
	}
}

func TestAPIAbout(t *testing.T) {
	ts, _ := newTestServer(t, &fakeDriver{}, false)

	var about AboutResponse
	getJSON(t, ts.URL+"/api/about", &about)
	if about.Service != "eyeplotter" {
		t.Fatalf("service=%q", about.Service)
	}
	if about.GoVersion == "" {
		t.Fatalf("go_version empty")
	}
}
