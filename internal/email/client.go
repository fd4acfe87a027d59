// Package email provides the outbound email-sending collaborator: a small
// HTTP client for a Postmark-compatible transactional email API.
//
// The client is deliberately dumb transport: it serializes one send request,
// enforces a bounded timeout, and reports every transport failure and every
// non-2xx response as an error. It never retries and never drops failures;
// retry policy belongs to the callers (the delivery worker retries
// indefinitely; the subscription flow surfaces the failure to the user).
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// authHeader carries the server token expected by the Postmark API.
const authHeader = "X-Postmark-Server-Token"

// Client sends email through a Postmark-compatible HTTP API.
//
// Construct with NewClient; the zero value is not usable. Client is safe for
// concurrent use.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	sender  domain.SubscriberEmail
	token   string
}

// NewClient builds a Client.
//
//   - baseURL: API root, e.g. "https://api.postmarkapp.com".
//   - sender: validated From address for all outgoing mail.
//   - token: server auth token, sent on every request.
//   - timeout: per-request deadline; a timeout is reported as an ordinary
//     send error (callers treat it like any other transient failure).
func NewClient(baseURL string, sender domain.SubscriberEmail, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse email API base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("email API base URL %q must be absolute", baseURL)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: u,
		sender:  sender,
		token:   token,
	}, nil
}

// sendRequest is the JSON payload of the Postmark send endpoint.
type sendRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
	HTMLBody string `json:"HtmlBody"`
}

// Send delivers one email. It returns nil only when the API answered with a
// 2xx status; transport errors, timeouts, and non-2xx responses all come
// back as errors so no failure is ever silently dropped.
func (c *Client) Send(ctx context.Context, to domain.SubscriberEmail, subject, textBody, htmlBody string) error {
	tr := otel.Tracer("email/Client")
	ctx, span := tr.Start(ctx, "Send")
	defer span.End()

	payload, err := json.Marshal(sendRequest{
		From:     c.sender.String(),
		To:       to.String(),
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}

	endpoint := c.baseURL.JoinPath("/email")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(authHeader, c.token)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("email API returned status %d for %s", res.StatusCode, to)
	}
	return nil
}
