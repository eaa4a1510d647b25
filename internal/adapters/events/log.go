package events

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/hylla/opportune/internal/app"
)

// LogHandler returns a handler that writes one structured line per event.
func LogHandler(logger *log.Logger) Handler {
	return func(_ context.Context, ev app.Event) {
		if logger == nil {
			return
		}
		keyvals := []any{
			"event", string(ev.Name),
			"opportunity_id", ev.OpportunityID,
			"status", string(ev.Status),
			"actor_id", ev.ActorID,
		}
		keys := make([]string, 0, len(ev.Data))
		for k := range ev.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			keyvals = append(keyvals, k, ev.Data[k])
		}
		logger.Info("opportunity event", keyvals...)
	}
}
