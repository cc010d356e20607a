package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
	"github.com/dmitrijs2005/accountkeeper/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Pointer fields distinguish an
// absent key from a zero value, so a file only overrides what it names.
// Durations accept "15m" style strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC *string `json:"endpoint_addr_grpc"`
	DatabaseDSN      *string `json:"database_dsn"`
	SecretKey        *string `json:"secret_key"`
	LogLevel         *string `json:"log_level"`

	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	ResetTokenValidityDuration   *timex.Duration `json:"reset_token_validity_duration"`
	BcryptCost                   *int            `json:"bcrypt_cost"`
	RevealEmailTaken             *bool           `json:"reveal_email_taken"`
	RevokeChainOnReuse           *bool           `json:"revoke_chain_on_reuse"`

	SentryDSN         *string `json:"sentry_dsn"`
	SentryEnvironment *string `json:"sentry_environment"`

	MailTransport   *string         `json:"mail_transport"`
	MailFrom        *string         `json:"mail_from"`
	MailWorkers     *int            `json:"mail_workers"`
	MailQueueSize   *int            `json:"mail_queue_size"`
	MailSendTimeout *timex.Duration `json:"mail_send_timeout"`
	SMTPHost        *string         `json:"smtp_host"`
	SMTPPort        *int            `json:"smtp_port"`
	SMTPUser        *string         `json:"smtp_user"`
	SMTPPassword    *string         `json:"smtp_password"`
	MailAPIURL      *string         `json:"mail_api_url"`
	MailAPIToken    *string         `json:"mail_api_token"`

	S3RootUser     *string `json:"s3_root_user"`
	S3RootPassword *string `json:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Region       *string `json:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

// parseJson loads the file named by -c/-config in args, if any.
func parseJson(cfg *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	set(&cfg.EndpointAddrGRPC, c.EndpointAddrGRPC)
	set(&cfg.DatabaseDSN, c.DatabaseDSN)
	set(&cfg.SecretKey, c.SecretKey)
	set(&cfg.LogLevel, c.LogLevel)

	setDuration(&cfg.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&cfg.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&cfg.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	set(&cfg.BcryptCost, c.BcryptCost)
	set(&cfg.RevealEmailTaken, c.RevealEmailTaken)
	set(&cfg.RevokeChainOnReuse, c.RevokeChainOnReuse)

	set(&cfg.SentryDSN, c.SentryDSN)
	set(&cfg.SentryEnvironment, c.SentryEnvironment)

	set(&cfg.MailTransport, c.MailTransport)
	set(&cfg.MailFrom, c.MailFrom)
	set(&cfg.MailWorkers, c.MailWorkers)
	set(&cfg.MailQueueSize, c.MailQueueSize)
	setDuration(&cfg.MailSendTimeout, c.MailSendTimeout)
	set(&cfg.SMTPHost, c.SMTPHost)
	set(&cfg.SMTPPort, c.SMTPPort)
	set(&cfg.SMTPUser, c.SMTPUser)
	set(&cfg.SMTPPassword, c.SMTPPassword)
	set(&cfg.MailAPIURL, c.MailAPIURL)
	set(&cfg.MailAPIToken, c.MailAPIToken)

	set(&cfg.S3RootUser, c.S3RootUser)
	set(&cfg.S3RootPassword, c.S3RootPassword)
	set(&cfg.S3Bucket, c.S3Bucket)
	set(&cfg.S3Region, c.S3Region)
	set(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)
	return nil
}
