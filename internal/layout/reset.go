package layout

import "context"

const defaultResetReason = "operator-reset"

// ResetCoordinator restores a layout slot to the canonical defaults. The
// write is unconditional: no diffing against current remote state.
type ResetCoordinator struct {
	planner *WritePlanner
	logger  Logger
}

func NewResetCoordinator(planner *WritePlanner, logger Logger) *ResetCoordinator {
	return &ResetCoordinator{planner: planner, logger: orNopLogger(logger)}
}

// Reset writes the default catalog to target annotated with reason. The
// default list is returned even when the write fails, so the caller can
// recover its draft locally while surfacing the error.
func (r *ResetCoordinator) Reset(ctx context.Context, target PlatformTarget, author, reason string) ([]Widget, error) {
	if reason == "" {
		reason = defaultResetReason
	}
	defaults := DefaultWidgets()
	if err := r.planner.WriteReset(ctx, target, defaults, author, reason); err != nil {
		r.logger.Printf("reset %s: write failed, caller keeps local defaults: %v", target, err)
		return defaults, err
	}
	return defaults, nil
}
