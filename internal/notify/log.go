package notify

import (
	"context"
	"log/slog"

	"corebridge/process-service/internal/process"
)

// LogNotifier writes notifications to the structured log. It is used when no
// Redis is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger, or slog.Default
// when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n process.Notification) {
	l.logger.InfoContext(ctx, "notification",
		"userId", n.UserID,
		"title", n.Title,
		"message", n.Message,
		"link", n.Link,
		"relatedId", n.RelatedID,
		"relatedType", n.RelatedType,
	)
}

var _ process.Notifier = (*LogNotifier)(nil)
