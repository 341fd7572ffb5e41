package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Sender dispatches outbound mail. Verification codes go through here;
// the portal treats delivery as out-of-band and best-effort at the
// storage layer (a stored code survives a failed send).
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Log is the fallback sender used when mail is not configured. It writes
// the message to the log instead of delivering it.
type Log struct {
	Logger *zap.Logger
}

// Send logs the message.
func (l Log) Send(ctx context.Context, to, subject, body string) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail not configured, dropping message",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
