package notify

import (
	"context"
	"log/slog"
)

// logEvent logs a published event at DEBUG, and at INFO when no subscriber
// took it. Copy results carry their version and outcome.
func logEvent(ev Event, delivered int) {
	attrs := []any{"event", ev.Name, "subscribers", delivered}
	if r, ok := ev.Payload.(CopyResult); ok {
		attrs = append(attrs, "version", r.Version, "success", r.Success)
	}
	if delivered == 0 {
		slog.Info("event not taken by any subscriber", attrs...)
		return
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	slog.Debug("event published", attrs...)
}
