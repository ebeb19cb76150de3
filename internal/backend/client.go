// Package backend is the HTTP client for the ride-hailing service. Every
// response is decoded through the one canonical envelope
// {success, data, message}; anything else is a protocol failure.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/observability"
)

const apiPrefix = "/v1"

// maxBody bounds how much of a response body is read.
const maxBody = 8 << 20

type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q is not absolute", baseURL)
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}, logger: logger}, nil
}

// Error describes a failed backend call. It matches models.ErrNetworkFailure
// or models.ErrProtocolFailure with errors.Is.
type Error struct {
	Op      string
	Status  int
	Message string
	kind    error
	err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// UserMessage is the text to show next to the action that failed.
func UserMessage(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}

type rawEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + apiPrefix + path
	err := c.roundTrip(ctx, op, method, path, query, body, out)
	result := "ok"
	if err != nil {
		result = "error"
		c.logger.Debug("backend call failed", "op", op, "error", err)
	}
	observability.BackendRequestsTotal.WithLabelValues(method+" "+routeLabel(path), result).Inc()
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + apiPrefix + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, kind: models.ErrProtocolFailure, err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &Error{Op: op, kind: models.ErrNetworkFailure, err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, kind: models.ErrNetworkFailure, err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &Error{Op: op, Status: resp.StatusCode, kind: models.ErrNetworkFailure, err: err}
	}

	var env rawEnvelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{Op: op, Status: resp.StatusCode, kind: models.ErrProtocolFailure}
		if decodeErr == nil {
			e.Message = env.Message
		}
		return e
	}
	if decodeErr != nil {
		return &Error{Op: op, Status: resp.StatusCode, kind: models.ErrProtocolFailure, err: fmt.Errorf("malformed envelope: %w", decodeErr)}
	}
	if !env.Success {
		return &Error{Op: op, Status: resp.StatusCode, Message: env.Message, kind: models.ErrProtocolFailure}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return &Error{Op: op, Status: resp.StatusCode, kind: models.ErrProtocolFailure, err: errors.New("envelope has no data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, kind: models.ErrProtocolFailure, err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// routeLabel collapses numeric path segments so metric labels stay bounded.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
