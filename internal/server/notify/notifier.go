// Package notify renders account emails and delivers them through a
// configurable transport without blocking the request that triggered them.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier delivers one message. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

func stripCRLF(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// rfc5322 renders msg as a complete MIME message with a quoted-printable
// HTML body.
func rfc5322(from string, msg Message, date time.Time, messageID string) ([]byte, error) {
	to, err := mail.ParseAddress(stripCRLF(msg.To))
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	sender, err := mail.ParseAddress(stripCRLF(from))
	if err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", sender.String())
	fmt.Fprintf(&buf, "To: %s\r\n", to.String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", stripCRLF(msg.Subject)))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s>\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}

// parseAddr returns the bare address part of s.
func parseAddr(s string) (string, error) {
	a, err := mail.ParseAddress(stripCRLF(s))
	if err != nil {
		return "", err
	}
	return a.Address, nil
}

func parseAddrWithName(s string) (*mail.Address, error) {
	return mail.ParseAddress(stripCRLF(s))
}
