package models

import "github.com/smazurov/plexwatch/internal/systemd"

// SystemdUnitResponse wraps the state of the supervised server's unit.
type SystemdUnitResponse struct {
	Body systemd.UnitStatus
}
