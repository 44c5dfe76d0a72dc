package system

import (
	"fmt"
	"os"
	"strings"
)

// ServiceManager talks to systemd through systemctl
type ServiceManager struct {
	runner CommandRunner
}

// NewServiceManager creates a ServiceManager. runner should escalate for
// commands that change state.
func NewServiceManager(runner CommandRunner) *ServiceManager {
	return &ServiceManager{runner: runner}
}

// Available reports whether the host is booted with systemd
func (s *ServiceManager) Available() bool {
	info, err := os.Stat("/run/systemd/system")
	return err == nil && info.IsDir()
}

// DaemonReload reloads systemd manager configuration so fstab changes
// regenerate the mount units
func (s *ServiceManager) DaemonReload() error {
	output, err := s.runner.Run("systemctl", "daemon-reload")
	if err != nil {
		return fmt.Errorf("failed to reload systemd daemon: %w\nOutput: %s", err, output)
	}
	return nil
}

// UnitState returns the ActiveState of a unit such as "active", "inactive"
// or "failed"
func (s *ServiceManager) UnitState(unit string) (string, error) {
	output, err := s.runner.Run("systemctl", "show", "--property=ActiveState", "--value", unit)
	if err != nil {
		return "", fmt.Errorf("failed to query unit %s: %w\nOutput: %s", unit, err, output)
	}
	return strings.TrimSpace(output), nil
}
