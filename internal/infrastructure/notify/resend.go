// Package notify delivers templated messages through the Resend email API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docshare/backend/internal/domain/notification"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrDelivery is returned when the provider does not accept a message.
var ErrDelivery = errors.New("notification delivery failed")

// ResendConfig holds provider settings.
type ResendConfig struct {
	BaseURL   string
	APIKey    string
	From      string
	AppName   string
	Templates map[notification.Kind]string
	RetryMax  int
	Timeout   time.Duration
}

// Resend sends messages using provider-side templates.
type Resend struct {
	cfg    ResendConfig
	client *retryablehttp.Client
}

var _ notification.Sender = (*Resend)(nil)

// NewResend constructs a sender with a retrying HTTP client.
func NewResend(cfg ResendConfig, logger *zap.Logger) *Resend {
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{l: logger.Sugar()}
	return &Resend{cfg: cfg, client: client}
}

type templateRef struct {
	ID        string            `json:"id"`
	Variables map[string]string `json:"variables"`
}

type sendRequest struct {
	From     string      `json:"from"`
	To       []string    `json:"to"`
	Template templateRef `json:"template"`
}

// Send posts msg to the provider. Any non-2xx response is an error.
func (r *Resend) Send(ctx context.Context, msg notification.Message) error {
	templateID, ok := r.cfg.Templates[msg.Kind]
	if !ok || templateID == "" {
		return fmt.Errorf("%w: no template for %s", ErrDelivery, msg.Kind)
	}

	vars := make(map[string]string, len(msg.Variables)+2)
	for k, v := range msg.Variables {
		vars[k] = v
	}
	vars["app_name"] = r.cfg.AppName
	vars["user_name"] = msg.Name

	body, err := json.Marshal(sendRequest{
		From:     fmt.Sprintf("%s <%s>", r.cfg.AppName, r.cfg.From),
		To:       []string{msg.To},
		Template: templateRef{ID: templateID, Variables: vars},
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, bytes.TrimSpace(detail))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.l.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.l.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.l.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.l.Warnw(msg, kv...) }
