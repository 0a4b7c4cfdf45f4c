package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/status"
)

// registerSSERoutes registers the watchdog event stream.
func (s *Server) registerSSERoutes() {
	if s.options.EventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Status snapshot on connect, then every state change, probe and remediation",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"status":             status.Snapshot{},
		"state-changed":      events.StateChangedEvent{},
		"probe":              events.ProbeCompletedEvent{},
		"remediation":        events.RemediationStartedEvent{},
		"processes-killed":   events.ProcessesKilledEvent{},
		"process-started":    events.ProcessStartedEvent{},
		"executable-missing": events.ExecutableMissingEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)
		bus := s.options.EventBus

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StateChangedEvent](bus, eventCh),
			events.SubscribeToChannel[events.ProbeCompletedEvent](bus, eventCh),
			events.SubscribeToChannel[events.RemediationStartedEvent](bus, eventCh),
			events.SubscribeToChannel[events.ProcessesKilledEvent](bus, eventCh),
			events.SubscribeToChannel[events.ProcessStartedEvent](bus, eventCh),
			events.SubscribeToChannel[events.ExecutableMissingEvent](bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(s.options.Tracker.Snapshot()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
