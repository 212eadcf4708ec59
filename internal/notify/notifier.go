package notify

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogNotifier is the notification sink. Events are fire-and-forget: emitted
// as structured log lines with a stable event id, never awaited and never
// surfaced as errors to the state machines.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(event string, fields map[string]any) {
	entry := n.log.Info().Str("event", event).Str("event_id", uuid.NewString())
	for k, v := range fields {
		entry = entry.Interface(k, v)
	}
	entry.Msg("notification")
}
