package cli

import (
	"errors"

	"netopt/internal/checkpoint"
	"netopt/internal/clock"
	"netopt/internal/config"
	"netopt/internal/safety"
)

func realClock() *clock.Clock {
	return clock.New()
}

// exitCodeFor maps a returned error to the spec §6 exit code table by
// walking the sentinel chain with errors.Is, most-specific first.
func exitCodeFor(err error) ExitCode {
	switch {
	case errors.Is(err, safety.ErrLocked):
		return ExitPermissionDenied
	case errors.Is(err, safety.ErrMissingTool):
		return ExitMissingTool
	case errors.Is(err, safety.ErrPreflight):
		return ExitPreflightFailed
	case errors.Is(err, safety.ErrPostValidate):
		return ExitPostValidateFail
	case errors.Is(err, safety.ErrWatchdogFired):
		return ExitWatchdogRollback
	case errors.Is(err, checkpoint.ErrCheckpoint), errors.Is(err, checkpoint.ErrNotFound), errors.Is(err, checkpoint.ErrIntegrity):
		return ExitCheckpointFailed
	case errors.Is(err, config.ErrConfig):
		return ExitConfigError
	default:
		return ExitGeneric
	}
}
