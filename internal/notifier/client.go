// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

// Package notifier delivers text and markdown messages to group-chat bot
// webhooks.
//
// Client performs one delivery synchronously. Dispatcher wraps a Client
// with a bounded queue and worker goroutines so that callers on the event
// path never wait on a slow webhook; a full queue drops the message and
// reports ErrQueueFull instead of blocking.
package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/roomwatch/internal/breaker"
	"github.com/tomtom215/roomwatch/internal/config"
	"github.com/tomtom215/roomwatch/internal/metrics"
)

// Message types understood by the webhook.
const (
	MsgTypeText     = "text"
	MsgTypeMarkdown = "markdown"
)

const maxResponseBytes = 64 << 10

// WebhookError is a non-zero errcode or non-2xx status from the webhook.
type WebhookError struct {
	Status  int
	Code    int
	Message string
}

func (e *WebhookError) Error() string {
	if e.Status != 0 && (e.Status < 200 || e.Status > 299) {
		return fmt.Sprintf("webhook returned status %d", e.Status)
	}
	return fmt.Sprintf("webhook errcode %d: %s", e.Code, e.Message)
}

// Sender is the delivery contract used by the dispatcher and the scheduler.
type Sender interface {
	SendText(ctx context.Context, key, content string) error
	SendMarkdown(ctx context.Context, key, content string) error
}

type content struct {
	Content string `json:"content"`
}

type payload struct {
	MsgType  string   `json:"msgtype"`
	Text     *content `json:"text,omitempty"`
	Markdown *content `json:"markdown,omitempty"`
}

type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Client posts messages to baseURL?key=<key>.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *breaker.Breaker[struct{}]
}

// NewClient creates a webhook client. A non-positive RatePerSecond disables
// outbound rate limiting.
func NewClient(cfg config.NotifierConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		breaker:    breaker.New[struct{}]("webhook", breaker.DefaultSettings()),
	}
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, key, text string) error {
	err := c.send(ctx, key, payload{MsgType: MsgTypeText, Text: &content{Content: text}})
	metrics.RecordNotifierSend(MsgTypeText, err)
	return err
}

// SendMarkdown delivers a markdown message.
func (c *Client) SendMarkdown(ctx context.Context, key, md string) error {
	err := c.send(ctx, key, payload{MsgType: MsgTypeMarkdown, Markdown: &content{Content: md}})
	metrics.RecordNotifierSend(MsgTypeMarkdown, err)
	return err
}

func (c *Client) send(ctx context.Context, key string, p payload) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidWebhookURL)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit: %w", err)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	// Rejections by the webhook itself (bad key, oversized content) are
	// returned to the caller without counting against the breaker.
	var rejected error
	_, err = c.breaker.Execute(func() (struct{}, error) {
		err := c.post(ctx, key, body)
		var we *WebhookError
		if errors.As(err, &we) && we.Status < http.StatusInternalServerError {
			rejected = err
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return err
	}
	return rejected
}

func (c *Client) post(ctx context.Context, key string, body []byte) error {
	endpoint := c.baseURL + "?key=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &WebhookError{Status: resp.StatusCode}
	}

	var wr webhookResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wr); err != nil {
			return fmt.Errorf("failed to decode webhook response: %w", err)
		}
	}
	if wr.ErrCode != 0 {
		return &WebhookError{Status: resp.StatusCode, Code: wr.ErrCode, Message: wr.ErrMsg}
	}
	return nil
}
