package sync

import (
	"context"
	"strconv"
	"time"
)

// Checkpoint keys tracked in sync_state.
const (
	ckLastReconcileAt = "last_reconcile_at"
)

// recordReconcile stamps the successful cycle so diagnostics and the
// daemon status endpoint can report sync freshness.
func (e *Engine) recordReconcile(ctx context.Context) {
	now := time.Now().UnixMilli()
	if err := e.db.SetSyncState(ctx, ckLastReconcileAt, strconv.FormatInt(now, 10)); err != nil {
		e.logger.Debug("checkpoint write failed")
	}
}

// LastReconcileAt returns the unix-millis timestamp of the last
// successful reconcile, or zero when none has completed.
func (e *Engine) LastReconcileAt(ctx context.Context) int64 {
	v, err := e.db.GetSyncState(ctx, ckLastReconcileAt)
	if err != nil {
		return 0
	}
	ts, _ := strconv.ParseInt(v, 10, 64)
	return ts
}
