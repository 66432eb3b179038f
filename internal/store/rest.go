package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fleetdesk/internal/model"
)

// REST talks to an existing transport-request backend over HTTP.
type REST struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	// GetRetries is how many times a failed read is retried. Updates are
	// never retried.
	GetRetries int
	backoff    func(attempt int) time.Duration
}

func NewREST(baseURL, token string) *REST {
	return &REST{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		GetRetries: 2,
		backoff:    func(a int) time.Duration { return time.Duration(1<<a) * 100 * time.Millisecond },
	}
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string { return fmt.Sprintf("backend: http %d: %s", e.Code, e.Body) }

func (c *REST) GetTransportRequestByID(ctx context.Context, id string) (model.TransportRequest, error) {
	var (
		tr  model.TransportRequest
		err error
	)
	for attempt := 0; attempt <= c.GetRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.TransportRequest{}, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}
		err = c.do(ctx, http.MethodGet, id, nil, &tr)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return model.TransportRequest{}, fmt.Errorf("store.REST.GetTransportRequestByID: %w", err)
	}
	return tr, nil
}

func (c *REST) UpdateTransportRequest(ctx context.Context, id string, patch model.TransportRequestPatch) (model.TransportRequest, error) {
	var tr model.TransportRequest
	if err := c.do(ctx, http.MethodPatch, id, patch, &tr); err != nil {
		return model.TransportRequest{}, fmt.Errorf("store.REST.UpdateTransportRequest: %w", err)
	}
	return tr, nil
}

func (c *REST) do(ctx context.Context, method, id string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/transport-requests/"+url.PathEscape(id), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode/100 != 2:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}
