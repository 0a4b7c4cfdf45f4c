package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitStatus is the read-only view of a systemd unit.
type UnitStatus struct {
	Unit        string `json:"unit" example:"plexmediaserver.service" doc:"Unit name"`
	ActiveState string `json:"active_state" example:"active" doc:"active, inactive, failed, activating, ..."`
	SubState    string `json:"sub_state" example:"running" doc:"Unit sub-state"`
	MainPID     uint32 `json:"main_pid" example:"4242" doc:"Main PID reported by systemd, 0 when none"`
}

// Manager reads unit state over the system D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager creates a manager with a system-level D-Bus connection.
func NewManager(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &Manager{conn: conn}, nil
}

// UnitStatus retrieves the state properties of a unit.
func (m *Manager) UnitStatus(ctx context.Context, unit string) (UnitStatus, error) {
	props, err := m.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return UnitStatus{}, fmt.Errorf("get properties of %s: %w", unit, err)
	}

	status := UnitStatus{Unit: unit}
	if v, ok := props["ActiveState"].(string); ok {
		status.ActiveState = v
	}
	if v, ok := props["SubState"].(string); ok {
		status.SubState = v
	}

	svc, err := m.conn.GetServicePropertyContext(ctx, unit, "MainPID")
	if err == nil {
		if pid, ok := svc.Value.Value().(uint32); ok {
			status.MainPID = pid
		}
	}
	return status, nil
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
