package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/plexwatch/internal/api/models"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/logging"
	"github.com/smazurov/plexwatch/internal/process"
	"github.com/smazurov/plexwatch/internal/status"
	"github.com/smazurov/plexwatch/internal/systemd"
)

type fakeLister struct {
	entries []process.Entry
	err     error
	pattern string
}

func (f *fakeLister) Matching(pattern string) ([]process.Entry, error) {
	f.pattern = pattern
	return f.entries, f.err
}

type fakeUnits struct {
	status systemd.UnitStatus
	err    error
}

func (f *fakeUnits) UnitStatus(_ context.Context, unit string) (systemd.UnitStatus, error) {
	if f.err != nil {
		return systemd.UnitStatus{}, f.err
	}
	s := f.status
	s.Unit = unit
	return s, nil
}

func newTestServer(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func basicAuth(user, pass string) http.Header {
	return http.Header{
		"Authorization": []string{"Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))},
	}
}

func TestHealthAndVersionArePublic(t *testing.T) {
	ts := newTestServer(t, &Options{AuthUsername: "admin", AuthPassword: "secret"})

	resp := get(t, ts.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	var health models.HealthData
	decode(t, resp, &health)
	if health.Status != "ok" {
		t.Errorf("health.Status = %q", health.Status)
	}

	resp = get(t, ts.URL+"/api/version", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("version status = %d, want 200", resp.StatusCode)
	}
	var info struct {
		Version string `json:"version"`
	}
	decode(t, resp, &info)
	if info.Version == "" {
		t.Error("version is empty")
	}
}

func TestStatusRequiresAuth(t *testing.T) {
	tracker := status.NewTracker()
	ts := newTestServer(t, &Options{AuthUsername: "admin", AuthPassword: "secret", Tracker: tracker})

	tests := []struct {
		name   string
		url    string
		header http.Header
		want   int
	}{
		{"no credentials", "/api/status", nil, http.StatusUnauthorized},
		{"wrong password", "/api/status", basicAuth("admin", "nope"), http.StatusUnauthorized},
		{"wrong scheme", "/api/status", http.Header{"Authorization": []string{"Bearer token"}}, http.StatusUnauthorized},
		{"valid header", "/api/status", basicAuth("admin", "secret"), http.StatusOK},
		{"valid query", "/api/status?auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret")), nil, http.StatusOK},
		{"bad query encoding", "/api/status?auth=not-base64!", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, ts.URL+tt.url, tt.header)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestStatusSnapshot(t *testing.T) {
	bus := events.New()
	tracker := status.NewTracker()
	unsub := tracker.Subscribe(bus)
	defer unsub()

	ts := newTestServer(t, &Options{Tracker: tracker})

	bus.Publish(events.StateChangedEvent{From: "initializing", To: "polling", Timestamp: events.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for {
		var snap status.Snapshot
		decode(t, get(t, ts.URL+"/api/status", nil), &snap)
		if snap.State == "polling" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("State = %q, want polling", snap.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcesses(t *testing.T) {
	lister := &fakeLister{entries: []process.Entry{
		{PID: 100, Name: "Plex Media Server"},
		{PID: 140, Name: "Plex Tuner Service"},
	}}
	ts := newTestServer(t, &Options{Processes: lister, ProcessPattern: "Plex*"})

	resp := get(t, ts.URL+"/api/processes", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body models.ProcessesData
	decode(t, resp, &body)

	if lister.pattern != "Plex*" {
		t.Errorf("lister called with %q, want Plex*", lister.pattern)
	}
	if body.Count != 2 || len(body.Processes) != 2 || body.Pattern != "Plex*" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestProcessesEmptyAndError(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		ts := newTestServer(t, &Options{Processes: &fakeLister{}, ProcessPattern: "Plex*"})
		raw, err := io.ReadAll(get(t, ts.URL+"/api/processes", nil).Body)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(raw), `"processes":[]`) {
			t.Errorf("body = %s, want empty array", raw)
		}
	})

	t.Run("table error", func(t *testing.T) {
		ts := newTestServer(t, &Options{Processes: &fakeLister{err: errors.New("no /proc")}})
		if resp := get(t, ts.URL+"/api/processes", nil); resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", resp.StatusCode)
		}
	})
}

func TestOptionalRoutesNotRegistered(t *testing.T) {
	ts := newTestServer(t, &Options{})

	for _, path := range []string{"/api/processes", "/api/systemd/unit", "/api/events", "/metrics"} {
		// The preflight handler owns "/", so unknown GETs may be 405.
		resp := get(t, ts.URL+path, nil)
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("GET %s = %d, want 404 or 405", path, resp.StatusCode)
		}
	}
}

func TestSystemdUnit(t *testing.T) {
	units := &fakeUnits{status: systemd.UnitStatus{ActiveState: "active", SubState: "running", MainPID: 4242}}
	ts := newTestServer(t, &Options{Systemd: units, SystemdUnit: "plexmediaserver.service"})

	resp := get(t, ts.URL+"/api/systemd/unit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got systemd.UnitStatus
	decode(t, resp, &got)
	want := systemd.UnitStatus{Unit: "plexmediaserver.service", ActiveState: "active", SubState: "running", MainPID: 4242}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	units.err = errors.New("bus closed")
	if resp := get(t, ts.URL+"/api/systemd/unit", nil); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestMetricsRoute(t *testing.T) {
	prom := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "plexwatch_up 1\n")
	})
	ts := newTestServer(t, &Options{PrometheusHandler: prom, AuthUsername: "admin", AuthPassword: "secret"})

	resp := get(t, ts.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "plexwatch_up 1") {
		t.Errorf("body = %q", raw)
	}
}

func TestLogs(t *testing.T) {
	if err := logging.Initialize(logging.Config{Level: "debug"}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = logging.Close() })

	logger := logging.GetLogger("apitest")
	for _, msg := range []string{"first", "second", "third"} {
		logger.Info(msg)
	}

	ts := newTestServer(t, &Options{})

	resp := get(t, ts.URL+"/api/logs?limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body models.LogsData
	decode(t, resp, &body)

	if body.Count != 2 || len(body.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(body.Entries))
	}
	if body.Entries[0].Message != "second" || body.Entries[1].Message != "third" {
		t.Errorf("entries = %+v, want second then third", body.Entries)
	}
	if body.Entries[1].Module != "apitest" || body.Entries[1].Level != "info" {
		t.Errorf("entry = %+v", body.Entries[1])
	}

	if resp := get(t, ts.URL+"/api/logs?limit=0", nil); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("limit=0 status = %d, want 422", resp.StatusCode)
	}
}

func TestLogCallbackPublishes(t *testing.T) {
	bus := events.New()
	received := make(chan events.LogEntryEvent, 1)
	unsub := bus.Subscribe(func(e events.LogEntryEvent) { received <- e })
	defer unsub()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	LogCallback(bus)(logging.LogEntry{
		Timestamp: ts,
		Level:     "warn",
		Module:    "watchdog",
		Message:   "Server unhealthy",
	})

	select {
	case e := <-received:
		if e.Message != "Server unhealthy" || e.Level != "warn" || e.Module != "watchdog" {
			t.Errorf("unexpected event: %+v", e)
		}
		if e.Timestamp != ts.Format(time.RFC3339Nano) {
			t.Errorf("Timestamp = %q", e.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for log event")
	}
}

// sseReader returns the event names and data lines of an SSE response.
type sseReader struct {
	scanner *bufio.Scanner
}

func (r *sseReader) next(t *testing.T) (string, string) {
	t.Helper()
	var name, data string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && data != "":
			return name, data
		}
	}
	t.Fatalf("stream ended: %v", r.scanner.Err())
	return "", ""
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	ts := newTestServer(t, &Options{EventBus: bus})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := &sseReader{scanner: bufio.NewScanner(resp.Body)}

	name, data := r.next(t)
	if name != "status" {
		t.Fatalf("first event = %q, want status", name)
	}
	var snap status.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != "initializing" {
		t.Errorf("snapshot state = %q", snap.State)
	}

	bus.Publish(events.RemediationStartedEvent{IncidentID: "inc-1", Reason: "status 503", Timestamp: events.Now()})

	name, data = r.next(t)
	if name != "remediation" {
		t.Fatalf("event = %q, want remediation", name)
	}
	var rem events.RemediationStartedEvent
	if err := json.Unmarshal([]byte(data), &rem); err != nil {
		t.Fatal(err)
	}
	if rem.IncidentID != "inc-1" || rem.Reason != "status 503" {
		t.Errorf("unexpected remediation: %+v", rem)
	}
}
