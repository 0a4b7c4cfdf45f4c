package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	handler := HTTPHandler()
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}

	metrics.RecordProbe(events.ProbeCompletedEvent{Outcome: "success", StatusCode: 200, Healthy: true, DurationMs: 5})
	metrics.SetState("polling")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	for _, name := range []string{"plexwatch_probe_total", "plexwatch_up 1", `plexwatch_state{state="polling"} 1`} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %q in response", name)
		}
	}
}
