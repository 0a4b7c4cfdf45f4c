package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/plexwatch/internal/api/models"
	"github.com/smazurov/plexwatch/internal/systemd"
)

// UnitStatusProvider reads the state of a systemd unit.
type UnitStatusProvider interface {
	UnitStatus(ctx context.Context, unit string) (systemd.UnitStatus, error)
}

func (s *Server) registerSystemdRoutes() {
	if s.options.Systemd == nil || s.options.SystemdUnit == "" {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-systemd-unit",
		Method:      http.MethodGet,
		Path:        "/api/systemd/unit",
		Summary:     "Server Unit Status",
		Description: "systemd state of the supervised server's unit",
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.SystemdUnitResponse, error) {
		unit, err := s.options.Systemd.UnitStatus(ctx, s.options.SystemdUnit)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get unit status", err)
		}
		return &models.SystemdUnitResponse{Body: unit}, nil
	})
}
