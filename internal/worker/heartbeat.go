package worker

import (
	"context"
	"time"

	"github.com/resqd/resq/internal/store"
)

// DefaultHeartbeatInterval is the cadence at which a live supervisor stamps
// its heartbeat.
const DefaultHeartbeatInterval = 60 * time.Second

// runHeartbeat stamps the server time under id every interval until ctx is
// cancelled, then clears the entry. Peers treat a stale stamp as evidence of
// a crash; clearing on exit keeps a clean shutdown from looking like one.
func runHeartbeat(ctx context.Context, s *store.Client, id string, interval time.Duration, logf func(level, format string, args ...any)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stamp := func() {
		now, err := s.ServerTime(ctx)
		if err != nil {
			logf("warning", "heartbeat: failed to read server time: %v", err)
			return
		}
		if err := s.Heartbeat(ctx, id, now); err != nil {
			logf("warning", "heartbeat: failed to stamp: %v", err)
		}
	}

	stamp()
	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.RemoveHeartbeat(cleanupCtx, id); err != nil {
				logf("warning", "heartbeat: failed to clear entry: %v", err)
			}
			return
		case <-ticker.C:
			stamp()
		}
	}
}
