package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeProbeCompleted
	TypeRemediationStarted
	TypeProcessesKilled
	TypeProcessStarted
	TypeExecutableMissing
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every supervision loop transition.
type StateChangedEvent struct {
	From      string `json:"from" example:"polling" doc:"Previous loop state"`
	To        string `json:"to" example:"remediating" doc:"New loop state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// ProbeCompletedEvent carries the outcome of a single health probe.
type ProbeCompletedEvent struct {
	URL        string  `json:"url" example:"http://127.0.0.1:32400/identity" doc:"Probed URL"`
	Outcome    string  `json:"outcome" example:"success" doc:"success, transport_failure or timeout"`
	StatusCode int     `json:"status_code" example:"200" doc:"HTTP status code, 0 when no response"`
	Healthy    bool    `json:"healthy" example:"true" doc:"Whether the probe counted as healthy"`
	DurationMs float64 `json:"duration_ms" example:"12.5" doc:"Probe round trip in milliseconds"`
	Error      string  `json:"error,omitempty" doc:"Transport error, if any"`
	Timestamp  string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Probe timestamp"`
}

// Type returns the event type identifier for ProbeCompletedEvent.
func (e ProbeCompletedEvent) Type() uint32 { return TypeProbeCompleted }

// RemediationStartedEvent marks the start of a kill-then-restart cycle.
type RemediationStartedEvent struct {
	IncidentID string `json:"incident_id" example:"2f1c6a52-4d3e-4d8f-9d7a-0c9e1b2a3f44" doc:"Incident identifier"`
	Reason     string `json:"reason" example:"status 503" doc:"Why the probe was unhealthy"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Remediation start timestamp"`
}

// Type returns the event type identifier for RemediationStartedEvent.
func (e RemediationStartedEvent) Type() uint32 { return TypeRemediationStarted }

// ProcessesKilledEvent reports a KillAll batch that matched at least one process.
type ProcessesKilledEvent struct {
	Pattern   string   `json:"pattern" example:"Plex*" doc:"Wildcard the processes matched"`
	Names     []string `json:"names" doc:"Names of the matched processes"`
	PIDs      []int    `json:"pids" doc:"PIDs of the matched processes"`
	Failed    int      `json:"failed" example:"0" doc:"Kill requests the OS rejected"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Kill timestamp"`
}

// Type returns the event type identifier for ProcessesKilledEvent.
func (e ProcessesKilledEvent) Type() uint32 { return TypeProcessesKilled }

// ProcessStartedEvent is published after the supervised executable was launched.
type ProcessStartedEvent struct {
	Path       string `json:"path" example:"/usr/lib/plexmediaserver/Plex Media Server" doc:"Launched executable"`
	PID        int    `json:"pid" example:"4242" doc:"PID of the launched process"`
	Discovered bool   `json:"discovered" example:"false" doc:"Whether the path came from the install search"`
	FirstRun   bool   `json:"first_run" example:"true" doc:"Whether this was the startup check"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Launch timestamp"`
}

// Type returns the event type identifier for ProcessStartedEvent.
func (e ProcessStartedEvent) Type() uint32 { return TypeProcessStarted }

// ExecutableMissingEvent is published right before the supervisor gives up
// because the executable exists neither at the configured path nor under any install root.
type ExecutableMissingEvent struct {
	Path      string   `json:"path" doc:"Configured executable path"`
	Roots     []string `json:"roots" doc:"Install roots that were searched"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ExecutableMissingEvent.
func (e ExecutableMissingEvent) Type() uint32 { return TypeExecutableMissing }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"watchdog" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
