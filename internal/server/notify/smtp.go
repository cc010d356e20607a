package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// sendMail is a seam for testing smtp.SendMail.
var sendMail = smtp.SendMail

// SMTPNotifier relays messages to an SMTP server with PLAIN auth (skipped
// when no user is configured).
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
	now  func() time.Time
}

func NewSMTPNotifier(host string, port int, user, password, from string) *SMTPNotifier {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPNotifier{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		auth: auth,
		from: from,
		now:  time.Now,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := uuid.NewString() + "@" + domainOf(n.from)
	body, err := rfc5322(n.from, msg, n.now(), id)
	if err != nil {
		return err
	}
	sender, _ := parseAddr(n.from)
	rcpt, _ := parseAddr(msg.To)
	if err := sendMail(n.addr, n.auth, sender, []string{rcpt}, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
