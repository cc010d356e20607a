package notify

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
)

// LogNotifier is the development transport: nothing leaves the process.
// Recipient and subject are logged at info; the body, which carries the
// token, only at debug.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With("module", "notify_log")}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.Info(ctx, "email captured", "to", msg.To, "subject", msg.Subject)
	n.logger.Debug(ctx, "email body", "to", msg.To, "html", msg.HTML)
	return nil
}
