// Package client holds outbound HTTP clients.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

const (
	lineService = "line"

	pushPath    = "/v2/bot/message/push"
	botInfoPath = "/v2/bot/info"

	// upstream bodies are truncated to this many bytes in errors
	maxErrorBody = 2048
)

// TokenSource supplies the current channel access token. It is read on every
// call so credential updates apply without a restart.
type TokenSource interface {
	AccessToken() string
}

// LineClient talks to the LINE Messaging API. Each call makes exactly one
// HTTP attempt bounded by the configured timeout.
type LineClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	timeout    time.Duration
}

// NewLineClient creates a new LineClient.
func NewLineClient(httpClient *http.Client, baseURL string, tokens TokenSource, cb *gobreaker.CircuitBreaker, bulkhead *resilience.Bulkhead, timeout time.Duration) *LineClient {
	return &LineClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokens:     tokens,
		cb:         cb,
		bulkhead:   bulkhead,
		timeout:    timeout,
	}
}

type pushRequest struct {
	To       string         `json:"to"`
	Messages []flex.Message `json:"messages"`
}

// PushMessage sends messages to a single LINE user id.
func (c *LineClient) PushMessage(ctx context.Context, to string, messages ...flex.Message) error {
	ctx, span := tracer.Start(ctx, "LineClient.PushMessage")
	defer span.End()
	span.SetAttributes(attribute.Int("line.messages", len(messages)))

	body, err := json.Marshal(pushRequest{To: to, Messages: messages})
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}

	if _, err := c.call(ctx, "push message", http.MethodPost, pushPath, body); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// BotInfo fetches the bot profile, used as a connectivity self-test.
func (c *LineClient) BotInfo(ctx context.Context) (*domain.BotInfo, error) {
	ctx, span := tracer.Start(ctx, "LineClient.BotInfo")
	defer span.End()

	raw, err := c.call(ctx, "bot info", http.MethodGet, botInfoPath, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var info domain.BotInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &domain.ErrGateway{Service: lineService, Err: fmt.Errorf("decode bot info: %w", err)}
	}
	return &info, nil
}

type response struct {
	status int
	body   []byte
}

// call performs one request. Client errors (4xx) are returned to the caller
// without counting against the breaker; transport errors and 5xx do count.
func (c *LineClient) call(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, &domain.ErrConfiguration{Setting: "LINE channel access token"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, c.classify(ctx, op, err)
	}
	defer c.bulkhead.Release()

	result, err := c.cb.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		out := &response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= 500 {
			return out, gatewayError(out)
		}
		return out, nil
	})
	if err != nil {
		return nil, c.classify(ctx, op, err)
	}

	resp := result.(*response)
	if resp.status < 200 || resp.status > 299 {
		return nil, gatewayError(resp)
	}
	return resp.body, nil
}

func (c *LineClient) classify(ctx context.Context, op string, err error) error {
	var gw *domain.ErrGateway
	switch {
	case errors.As(err, &gw):
		return gw
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: lineService}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: "LINE " + op}
	default:
		return &domain.ErrGateway{Service: lineService, Err: err}
	}
}

func gatewayError(resp *response) *domain.ErrGateway {
	body := resp.body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &domain.ErrGateway{Service: lineService, StatusCode: resp.status, Body: string(body)}
}
