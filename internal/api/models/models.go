// Package models holds the request and response types of the status API.
package models

import (
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/process"
	"github.com/smazurov/plexwatch/internal/status"
	"github.com/smazurov/plexwatch/internal/version"
)

// HealthData reports the API's own health, not the supervised server's.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

// HealthResponse wraps HealthData.
type HealthResponse struct {
	Body HealthData
}

// VersionResponse wraps build metadata.
type VersionResponse struct {
	Body version.Info
}

// StatusResponse wraps the supervision snapshot.
type StatusResponse struct {
	Body status.Snapshot
}

// ProcessesData lists the processes matching the family pattern.
type ProcessesData struct {
	Pattern   string          `json:"pattern" example:"Plex*" doc:"Wildcard used to match process names"`
	Processes []process.Entry `json:"processes" doc:"Matching processes"`
	Count     int             `json:"count" example:"3" doc:"Number of matching processes"`
}

// ProcessesResponse wraps ProcessesData.
type ProcessesResponse struct {
	Body ProcessesData
}

// LogsRequest selects the most recent log entries.
type LogsRequest struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum number of entries"`
}

// LogsData holds buffered log entries, oldest first.
type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Log entries, oldest first"`
	Count   int                    `json:"count" example:"100" doc:"Number of entries returned"`
}

// LogsResponse wraps LogsData.
type LogsResponse struct {
	Body LogsData
}
