//go:build !linux

package safety

import (
	"context"
	"time"
)

// WriteRollbackScript is a stub outside Linux that returns ErrMissingTool:
// this tool's watchdog supervisor relies on systemd-run, which only exists
// there.
func WriteRollbackScript(path, binPath, stateRoot string) error {
	return ErrMissingTool
}

func ScheduleSupervisor(ctx context.Context, unitName, scriptPath string, timeout time.Duration) error {
	return ErrMissingTool
}

func CancelSupervisor(ctx context.Context, unitName string) error {
	return nil
}
