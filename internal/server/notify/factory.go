package notify

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
)

// NewNotifier builds the transport selected by cfg.MailTransport.
func NewNotifier(ctx context.Context, cfg *config.Config, logger logging.Logger) (Notifier, error) {
	switch cfg.MailTransport {
	case config.MailTransportLog, "":
		return NewLogNotifier(logger), nil
	case config.MailTransportSMTP:
		return NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom), nil
	case config.MailTransportHTTP:
		return NewHTTPNotifier(cfg.MailAPIURL, cfg.MailAPIToken, cfg.MailFrom, nil), nil
	case config.MailTransportS3:
		client, err := NewS3Client(ctx, cfg.S3Region, cfg.S3RootUser, cfg.S3RootPassword, cfg.S3BaseEndpoint)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		return NewS3Notifier(client, cfg.S3Bucket, cfg.MailFrom), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}
}
