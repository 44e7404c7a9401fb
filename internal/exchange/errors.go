package exchange

import (
	"errors"
	"net/http"
	"strings"

	"coinbridge/internal/core"
	"coinbridge/internal/transport"
)

// ErrMissingCredentials is a local configuration error: a signed call was attempted
// without the credentials it needs. Nothing is sent to the exchange.
var ErrMissingCredentials = errors.New("api credentials not configured")

// authMessageMarkers are normalized fragments exchanges use when they reject a signature,
// key or nonce inside an otherwise successful response.
var authMessageMarkers = []string{
	"nonce",
	"signature",
	"invalid key",
	"api key",
	"apikey",
	"invalid token",
	"wrong token",
	"not authorized",
	"unauthorized",
	"authentication",
	"permission denied",
}

func normalizeMessage(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

// IsAuthMessage reports whether an exchange error text is a credential rejection.
func IsAuthMessage(msg string) bool {
	normalized := normalizeMessage(msg)
	if normalized == "" {
		return false
	}
	for _, marker := range authMessageMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// classifyAuth returns an AuthenticationError for err when it is a credential rejection,
// either an HTTP 401/403 or an embedded message matching authMessageMarkers.
func classifyAuth(exchange string, err error) (*core.AuthenticationError, bool) {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		body := strings.TrimSpace(string(statusErr.Body))
		if statusErr.Status == http.StatusUnauthorized || statusErr.Status == http.StatusForbidden || IsAuthMessage(body) {
			return &core.AuthenticationError{Exchange: exchange, Msg: core.RawFragment([]byte(body)), Status: statusErr.Status}, true
		}
		return nil, false
	}
	var adapterErr *core.AdapterError
	if errors.As(err, &adapterErr) && IsAuthMessage(adapterErr.Msg) {
		return &core.AuthenticationError{Exchange: exchange, Msg: adapterErr.Msg}, true
	}
	return nil, false
}
