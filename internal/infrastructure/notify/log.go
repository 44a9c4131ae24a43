package notify

import (
	"context"
	"strings"

	"docshare/backend/internal/domain/notification"

	"go.uber.org/zap"
)

// LogSender records that a message would have been sent. It is used when no
// provider is configured. Variables carry codes and links, so they are only
// logged, at debug level, when reveal is set.
type LogSender struct {
	logger *zap.Logger
	reveal bool
}

var _ notification.Sender = (*LogSender)(nil)

// NewLogSender builds a LogSender. Pass reveal only for local development
// setups where the log is the sole way to read a code.
func NewLogSender(logger *zap.Logger, reveal bool) *LogSender {
	return &LogSender{logger: logger, reveal: reveal}
}

func (s *LogSender) Send(_ context.Context, msg notification.Message) error {
	s.logger.Info("notification suppressed, no provider configured",
		zap.String("kind", string(msg.Kind)),
		zap.String("to_domain", recipientDomain(msg.To)),
	)
	if s.reveal {
		s.logger.Debug("suppressed notification content",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.Any("variables", msg.Variables),
		)
	}
	return nil
}

func recipientDomain(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok {
		return domain
	}
	return ""
}
