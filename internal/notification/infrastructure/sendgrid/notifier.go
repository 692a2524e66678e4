// Package sendgrid delivers notifications as e-mail.
package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	notificationApp "github.com/felixgeelhaar/tempo/internal/notification/application"
	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	DefaultHost  = "https://api.sendgrid.com"
	sendEndpoint = "/v3/mail/send"
)

// Config holds the sender and the single recipient of a personal install.
type Config struct {
	APIKey   string
	Host     string
	FromName string
	From     string
	To       string
}

// Notifier sends each message as a plain-text and HTML e-mail.
type Notifier struct {
	cfg  Config
	send func(ctx context.Context, req rest.Request) (*rest.Response, error)
}

func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid API key is required")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, errors.New("sendgrid notifier needs a sender and a recipient")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.FromName == "" {
		cfg.FromName = "tempo"
	}
	return &Notifier{cfg: cfg, send: sg.MakeRequestWithContext}, nil
}

func (n *Notifier) Name() string { return "sendgrid" }

func (n *Notifier) Notify(ctx context.Context, msg notificationApp.Message) error {
	from := mail.NewEmail(n.cfg.FromName, n.cfg.From)
	to := mail.NewEmail("", n.cfg.To)
	email := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "<p>"+escape(msg.Body)+"</p>")
	email.SetHeader("X-Tempo-Kind", string(msg.Kind))

	req := sg.GetRequest(n.cfg.APIKey, sendEndpoint, n.cfg.Host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(email)

	resp, err := n.send(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func escape(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}
