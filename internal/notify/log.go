package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of sending them. It stands
// in for SMTP when mail is disabled.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send renders msg and logs it.
func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}
	n.logger.Info("notification", zap.String("to", msg.To), zap.String("template", msg.Template),
		zap.String("subject", subject), zap.Int("body_bytes", len(body)))
	return nil
}
