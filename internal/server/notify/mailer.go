package notify

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/observability"
)

// Mailer renders the account emails and queues them on a Dispatcher.
type Mailer struct {
	templates  *Templates
	dispatcher *Dispatcher
	logger     logging.Logger
	reporter   observability.Reporter
}

func NewMailer(t *Templates, d *Dispatcher, l logging.Logger, r observability.Reporter) *Mailer {
	if r == nil {
		r = observability.NopReporter{}
	}
	return &Mailer{templates: t, dispatcher: d, logger: l.With("module", "mailer"), reporter: r}
}

func (m *Mailer) queue(ctx context.Context, template string, msg Message, err error) {
	if err != nil {
		m.logger.Error(ctx, "email rendering failed", "template", template, "error", err.Error())
		m.reporter.Report(ctx, common.Wrap(common.ErrDeliveryFailed, err), map[string]string{"template": template})
		return
	}
	m.dispatcher.Dispatch(ctx, template, msg)
}

func (m *Mailer) SendVerification(ctx context.Context, email, token, origin string) {
	msg, err := m.templates.Verification(email, token, origin)
	m.queue(ctx, TemplateVerification, msg, err)
}

func (m *Mailer) SendAlreadyRegistered(ctx context.Context, email, origin string) {
	msg, err := m.templates.AlreadyRegistered(email, origin)
	m.queue(ctx, TemplateAlreadyRegistered, msg, err)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, email, token, origin string) {
	msg, err := m.templates.PasswordReset(email, token, origin)
	m.queue(ctx, TemplatePasswordReset, msg, err)
}
