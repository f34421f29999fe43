// Package client talks to an objex server over its HTTP API.
package client

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

	"nhooyr.io/websocket"

	"github.com/objex-dev/objex/internal/exchange"
)

const headerSubscriberID = "X-SubscriberId"

type Client struct {
	baseURL    string
	httpClient *http.Client
	readLimit  int64
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithReadLimit caps the size of a single streamed message.
func WithReadLimit(n int64) Option {
	return func(c *Client) {
		c.readLimit = n
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Longer than any sane poll timeout.
		httpClient: &http.Client{Timeout: 90 * time.Second},
		readLimit:  1 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for any non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("objex: status %d", e.Code)
	}
	return fmt.Sprintf("objex: status %d: %s", e.Code, e.Message)
}

// Is lets callers match a StatusError against the exchange sentinels.
func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case http.StatusConflict:
		return target == exchange.ErrChannelExists
	case http.StatusNotFound:
		return target == exchange.ErrChannelNotFound
	case http.StatusUnauthorized:
		return target == exchange.ErrWrongAnswer || target == exchange.ErrUnknownSubscriber
	}
	return false
}

type envelope struct {
	Status       int    `json:"status"`
	Error        string `json:"error"`
	SubscriberID string `json:"subscriberId"`
	Question     string `json:"question"`
	Delivered    int    `json:"delivered"`
}

func (c *Client) channelURL(channelID string) string {
	return c.baseURL + "/" + url.PathEscape(channelID)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("objex: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var env envelope
		json.NewDecoder(resp.Body).Decode(&env)
		return nil, &StatusError{Code: resp.StatusCode, Message: env.Error}
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("objex: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("objex: decode response: %w", err)
	}
	return &env, nil
}

// CreateChannel creates a channel and returns the creator's subscriber id.
func (c *Client) CreateChannel(ctx context.Context, channelID, question, answer string) (string, error) {
	env, err := c.postJSON(ctx, c.baseURL+"/", map[string]string{
		"channelId": channelID,
		"question":  question,
		"answer":    answer,
	})
	if err != nil {
		return "", err
	}
	return env.SubscriberID, nil
}

// Question fetches the challenge a joiner must answer.
func (c *Client) Question(ctx context.Context, channelID string) (string, error) {
	env, err := c.postJSON(ctx, c.channelURL(channelID), struct{}{})
	if err != nil {
		return "", err
	}
	return env.Question, nil
}

// Join answers the challenge and returns a new subscriber id.
func (c *Client) Join(ctx context.Context, channelID, answer string) (string, error) {
	if answer == "" {
		return "", errors.New("objex: join needs an answer")
	}
	env, err := c.postJSON(ctx, c.channelURL(channelID), map[string]string{"answer": answer})
	if err != nil {
		return "", err
	}
	return env.SubscriberID, nil
}

// Publish broadcasts data and reports how many pending polls received it.
func (c *Client) Publish(ctx context.Context, channelID, subscriberID string, data []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.channelURL(channelID), bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set(headerSubscriberID, subscriberID)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return 0, fmt.Errorf("objex: decode response: %w", err)
	}
	return env.Delivered, nil
}

// Poll waits for the next message. ok is false when the poll window
// elapsed without one.
func (c *Client) Poll(ctx context.Context, channelID, subscriberID string) (data []byte, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.channelURL(channelID), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set(headerSubscriberID, subscriberID)

	resp, err := c.do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, false, nil
	}
	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("objex: read payload: %w", err)
	}
	return data, true, nil
}

// Stream calls fn with every message delivered to subscriberID until ctx
// is done, the server ends the stream, or fn returns an error.
func (c *Client) Stream(ctx context.Context, channelID, subscriberID string, fn func([]byte) error) error {
	wsURL := strings.Replace(c.channelURL(channelID), "http", "ws", 1) + "/stream"

	header := http.Header{}
	header.Set(headerSubscriberID, subscriberID)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return &StatusError{Code: resp.StatusCode}
		}
		return fmt.Errorf("objex: dial stream: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(c.readLimit)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("objex: read stream: %w", err)
		}
		if err := fn(data); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}
