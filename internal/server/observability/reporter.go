// Package observability reports unexpected failures to Sentry.
package observability

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/getsentry/sentry-go"
)

// Reporter forwards failures that are not the caller's fault (delivery
// errors, store outages, internal errors) to an error tracker.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration) bool
}

type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter builds a reporter with its own Sentry client. An empty
// DSN yields a client that drops every event, which keeps development
// setups free of a Sentry dependency.
func NewSentryReporter(opts sentry.ClientOptions) (*SentryReporter, error) {
	opts.AttachStacktrace = true
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := r.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", string(common.KindOf(err)))
		scope.SetTags(tags)
	})
	hub.CaptureException(err)
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// NopReporter discards reports.
type NopReporter struct{}

func (NopReporter) Report(context.Context, error, map[string]string) {}

func (NopReporter) Flush(time.Duration) bool { return true }
