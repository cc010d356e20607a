package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPNotifier posts messages to a Mailtrap-compatible JSON send API.
type HTTPNotifier struct {
	url       string
	token     string
	fromEmail string
	fromName  string
	client    *http.Client
}

func NewHTTPNotifier(url, token, from string, client *http.Client) *HTTPNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	email, name := from, ""
	if addr, err := parseAddrWithName(from); err == nil {
		email, name = addr.Address, addr.Name
	}
	return &HTTPNotifier{url: url, token: token, fromEmail: email, fromName: name, client: client}
}

type httpAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type httpSendRequest struct {
	From     httpAddress   `json:"from"`
	To       []httpAddress `json:"to"`
	Subject  string        `json:"subject"`
	HTML     string        `json:"html"`
	Category string        `json:"category"`
}

func (n *HTTPNotifier) Send(ctx context.Context, msg Message) error {
	to, err := parseAddr(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	payload, err := json.Marshal(httpSendRequest{
		From:     httpAddress{Email: n.fromEmail, Name: n.fromName},
		To:       []httpAddress{{Email: to}},
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Category: "account",
	})
	if err != nil {
		return fmt.Errorf("marshaling email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
