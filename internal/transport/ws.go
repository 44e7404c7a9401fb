package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type wsRequest struct {
	ID      string              `json:"id"`
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Params  map[string][]string `json:"params,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
}

type wsError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type wsResponse struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wsError        `json:"error,omitempty"`
}

// WSTransport carries requests over one persistent websocket to a relay gateway that answers
// each {id, method, path, params, headers} frame with {id, status, result|error} after
// performing the REST call itself. No supported exchange speaks this protocol, so the
// transport is only usable with such a relay deployed; http is the default.
// Requests are serialized; frames with other ids are skipped.
type WSTransport struct {
	url     string
	timeout time.Duration
	dialer  websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	seq  uint64
}

func NewWSTransport(wsURL string, timeout time.Duration) *WSTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WSTransport{
		url:     strings.TrimRight(wsURL, "/"),
		timeout: timeout,
		dialer:  websocket.Dialer{HandshakeTimeout: timeout},
	}
}

func (t *WSTransport) Do(ctx context.Context, r Request) ([]byte, error) {
	if t.url == "" {
		return nil, errors.New("ws base url required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := t.ensureConn(ctx)
	if err != nil {
		return nil, err
	}
	params := map[string][]string{}
	for k, v := range r.Query {
		params[k] = v
	}
	for k, v := range r.Form {
		params[k] = v
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req := wsRequest{
		ID:      strconv.FormatUint(atomic.AddUint64(&t.seq, 1), 10),
		Method:  method,
		Path:    r.Path,
		Params:  params,
		Headers: r.Header,
	}
	resp, err := t.roundTrip(ctx, conn, req)
	if err != nil {
		t.resetConn()
		return nil, err
	}
	if resp.Status/100 != 2 {
		body := []byte(resp.Result)
		if resp.Error != nil {
			body, _ = json.Marshal(resp.Error)
		}
		return nil, &StatusError{Status: resp.Status, Body: body}
	}
	return resp.Result, nil
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetConn()
	return nil
}

func (t *WSTransport) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	return conn, nil
}

func (t *WSTransport) resetConn() {
	if t.conn == nil {
		return
	}
	_ = t.conn.Close()
	t.conn = nil
}

func (t *WSTransport) roundTrip(ctx context.Context, conn *websocket.Conn, req wsRequest) (wsResponse, error) {
	if err := conn.WriteJSON(req); err != nil {
		return wsResponse{}, err
	}
	deadline := time.Now().Add(t.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return wsResponse{}, err
		}
		var resp wsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.ID != req.ID {
			continue
		}
		return resp, nil
	}
}
