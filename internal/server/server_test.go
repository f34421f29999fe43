package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/objex-dev/objex/internal/config"
	"github.com/objex-dev/objex/internal/exchange"
)

type testServer struct {
	*httptest.Server
	registry *exchange.Registry
}

func newTestServer(t *testing.T, configure func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.DefaultDev()
	cfg.Exchange.PollTimeout = 5 * time.Second
	if configure != nil {
		configure(cfg)
	}

	reg := exchange.NewRegistry()
	ts := httptest.NewServer(New(cfg, reg).Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, registry: reg}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (ts *testServer) postJSON(t *testing.T, path string, payload any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, data := ts.do(t, http.MethodPost, path, bytes.NewReader(body), http.Header{
		"Content-Type": {"application/json"},
	})
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return resp.StatusCode, out
}

func (ts *testServer) create(t *testing.T, channelID, question, answer string) string {
	t.Helper()
	status, out := ts.postJSON(t, "/", map[string]string{
		"channelId": channelID,
		"question":  question,
		"answer":    answer,
	})
	require.Equal(t, http.StatusOK, status, "%v", out)
	return out["subscriberId"].(string)
}

func (ts *testServer) join(t *testing.T, channelID, answer string) string {
	t.Helper()
	status, out := ts.postJSON(t, "/"+channelID, map[string]string{"answer": answer})
	require.Equal(t, http.StatusOK, status, "%v", out)
	return out["subscriberId"].(string)
}

func (ts *testServer) publish(t *testing.T, channelID, subscriberID, payload string) (int, map[string]any) {
	t.Helper()
	resp, data := ts.do(t, http.MethodPut, "/"+channelID, strings.NewReader(payload), http.Header{
		HeaderSubscriberID: {subscriberID},
	})
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return resp.StatusCode, out
}

type pollOutcome struct {
	status int
	body   []byte
}

// startPoll issues a GET in the background and waits until the server has
// registered it.
func (ts *testServer) startPoll(t *testing.T, channelID, subscriberID string) <-chan pollOutcome {
	t.Helper()
	ch, ok := ts.registry.Get(channelID)
	require.True(t, ok)
	before := ch.Stats().Pending

	out := make(chan pollOutcome, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/"+channelID, nil)
		req.Header.Set(HeaderSubscriberID, subscriberID)
		resp, err := ts.Client().Do(req)
		if err != nil {
			out <- pollOutcome{}
			return
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		out <- pollOutcome{status: resp.StatusCode, body: data}
	}()

	require.Eventually(t, func() bool { return ch.Stats().Pending > before }, 2*time.Second, 5*time.Millisecond)
	return out
}

func waitPoll(t *testing.T, out <-chan pollOutcome) pollOutcome {
	t.Helper()
	select {
	case res := <-out:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not complete")
		return pollOutcome{}
	}
}

func TestCreateChannel(t *testing.T) {
	ts := newTestServer(t, nil)

	id := ts.create(t, "c1", "color?", "blue")
	assert.NotEmpty(t, id)

	status, out := ts.postJSON(t, "/", map[string]string{"channelId": "c1", "question": "q", "answer": "a"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, float64(http.StatusConflict), out["status"])

	status, out = ts.postJSON(t, "/", map[string]string{"channelId": "c2", "question": "q"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out["error"], "answer")
	assert.False(t, ts.registry.Has("c2"))
}

func TestCreateChannelForm(t *testing.T) {
	ts := newTestServer(t, nil)

	form := url.Values{"channelId": {"c1"}, "question": {"color?"}, "answer": {"blue"}}
	resp, data := ts.do(t, http.MethodPost, "/", strings.NewReader(form.Encode()), http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%s", data)

	var out SubscriberResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, http.StatusOK, out.Status)
	assert.NotEmpty(t, out.SubscriberID)
}

func TestCreateChannelBadJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.do(t, http.MethodPost, "/", strings.NewReader("{"), http.Header{
		"Content-Type": {"application/json"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJoin(t *testing.T) {
	ts := newTestServer(t, nil)
	creator := ts.create(t, "c1", "color?", "blue")

	status, out := ts.postJSON(t, "/c1", map[string]string{})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "color?", out["question"])

	status, _ = ts.postJSON(t, "/c1", map[string]string{"answer": "red"})
	assert.Equal(t, http.StatusUnauthorized, status)

	joiner := ts.join(t, "c1", "blue")
	assert.NotEqual(t, creator, joiner)

	status, _ = ts.postJSON(t, "/nope", map[string]string{"answer": "blue"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPollRejections(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, "c1", "color?", "blue")

	resp, _ := ts.do(t, http.MethodGet, "/c1", nil, http.Header{HeaderSubscriberID: {"made-up"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/c1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/missing", nil, http.Header{HeaderSubscriberID: {"made-up"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublishRejections(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodPut, "/missing", strings.NewReader("hi"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts.create(t, "c1", "color?", "blue")
	status, out := ts.publish(t, "c1", "stranger", "hi")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), out["delivered"])
}

func TestPublishTooLarge(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxPayloadBytes = 4
	})
	a := ts.create(t, "c1", "q", "a")

	resp, _ := ts.do(t, http.MethodPut, "/c1", strings.NewReader("too long"), http.Header{
		HeaderSubscriberID: {a},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestEndToEnd(t *testing.T) {
	ts := newTestServer(t, nil)

	a := ts.create(t, "c1", "color?", "blue")
	status, _ := ts.postJSON(t, "/c1", map[string]string{"answer": "red"})
	require.Equal(t, http.StatusUnauthorized, status)
	b := ts.join(t, "c1", "blue")

	pending := ts.startPoll(t, "c1", b)

	status, out := ts.publish(t, "c1", a, "hi")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), out["delivered"])

	res := waitPoll(t, pending)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "hi", string(res.body))
}

func TestPollTimeout(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Exchange.PollTimeout = 200 * time.Millisecond
	})
	ts.create(t, "c1", "color?", "blue")
	b := ts.join(t, "c1", "blue")

	res := waitPoll(t, ts.startPoll(t, "c1", b))
	assert.Equal(t, http.StatusNoContent, res.status)
	assert.Empty(t, res.body)
}

func TestPublishSkipsOwnPoll(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.create(t, "c1", "color?", "blue")
	b := ts.join(t, "c1", "blue")

	own := ts.startPoll(t, "c1", a)

	_, out := ts.publish(t, "c1", a, "echo")
	assert.Equal(t, float64(0), out["delivered"])

	select {
	case res := <-own:
		t.Fatalf("publisher's own poll completed with %d", res.status)
	case <-time.After(50 * time.Millisecond):
	}

	ts.publish(t, "c1", b, "from b")
	res := waitPoll(t, own)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "from b", string(res.body))
}

func TestPollClientDisconnect(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, "c1", "color?", "blue")
	b := ts.join(t, "c1", "blue")
	ch, _ := ts.registry.Get("c1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/c1", nil)
		req.Header.Set(HeaderSubscriberID, b)
		if resp, err := ts.Client().Do(req); err == nil {
			resp.Body.Close()
		}
	}()

	require.Eventually(t, func() bool { return ch.Stats().Pending == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Eventually(t, func() bool { return ch.Stats().Pending == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStream(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.create(t, "c1", "color?", "blue")
	b := ts.join(t, "c1", "blue")
	ch, _ := ts.registry.Get("c1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/c1/stream?subscriberId=" + url.QueryEscape(b)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	for _, msg := range []string{"one", "two"} {
		require.Eventually(t, func() bool { return ch.Stats().Pending == 1 }, 2*time.Second, 5*time.Millisecond)
		_, out := ts.publish(t, "c1", a, msg)
		require.Equal(t, float64(1), out["delivered"])

		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageBinary, typ)
		assert.Equal(t, msg, string(data))
	}

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return ch.Stats().Pending == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStreamUnknownSubscriber(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, "c1", "color?", "blue")

	resp, _ := ts.do(t, http.MethodGet, "/c1/stream?subscriberId=nobody", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, "c1", "color?", "blue")

	resp, data := ts.do(t, http.MethodGet, "/-/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(1), out["channels"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(exchange.ErrChannelExists))
	assert.Equal(t, http.StatusNotFound, statusFor(exchange.ErrChannelNotFound))
	assert.Equal(t, http.StatusNotFound, statusFor(errMissingSubscriberID))
	assert.Equal(t, http.StatusUnauthorized, statusFor(exchange.ErrWrongAnswer))
	assert.Equal(t, http.StatusUnauthorized, statusFor(exchange.ErrUnknownSubscriber))
	assert.Equal(t, http.StatusBadRequest, statusFor(io.ErrUnexpectedEOF))
}
