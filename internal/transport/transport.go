package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request is an exchange call before it reaches the wire. Path is appended to the
// transport's base URL; Form, when set, is sent form-encoded as the body.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

// Transport sends a request and returns the raw response body.
type Transport interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// StatusError is a non-success response; Body keeps the raw payload for classification.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

// DecodeJSON decodes a raw body into an exchange-specific record.
func DecodeJSON(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty response body")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	return dec.Decode(v)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req Request) ([]byte, error)

func (f Func) Do(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }
