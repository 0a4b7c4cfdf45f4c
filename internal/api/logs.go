package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/plexwatch/internal/api/models"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/logging"
)

// logEntryEvent converts a buffered log entry into its wire form.
func logEntryEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// LogCallback returns a logging callback that republishes every entry on bus
// for the log stream endpoint.
func LogCallback(bus *events.Bus) logging.LogCallback {
	return func(entry logging.LogEntry) {
		bus.Publish(logEntryEvent(entry))
	}
}

// registerLogRoutes registers the log snapshot and log streaming endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Most recent entries of the in-memory log buffer, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		entries := []events.LogEntryEvent{}
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Tail(input.Limit) {
				entries = append(entries, logEntryEvent(entry))
			}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})

	if s.options.EventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.options.EventBus, eventCh)
		defer unsubscribe()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(logEntryEvent(entry)); err != nil {
					return
				}
			}
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
