package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPair indicates the pair is not listed by the exchange.
	ErrUnsupportedPair = errors.New("unsupported currency pair")
	// ErrPrecision indicates a value cannot be represented at the exchange resolution.
	ErrPrecision = errors.New("precision exceeds exchange resolution")
	// ErrAdapter indicates a malformed response or an embedded exchange error message.
	ErrAdapter = errors.New("exchange response rejected")
	// ErrAuthentication indicates the exchange rejected the signature, key or nonce.
	ErrAuthentication = errors.New("authentication rejected")
	// ErrUnsupportedOperation indicates the exchange does not offer the capability.
	ErrUnsupportedOperation = errors.New("operation not supported by exchange")
	// ErrNonceExhausted indicates the nonce source can no longer produce valid values.
	ErrNonceExhausted = errors.New("nonce source exhausted")
	// ErrInvalidOrder indicates the order fails basic domain invariants.
	ErrInvalidOrder = errors.New("invalid order")
)

type UnsupportedPairError struct {
	Exchange string
	Pair     CurrencyPair
}

func (e *UnsupportedPairError) Error() string {
	return fmt.Sprintf("%s: currency pair %s is not supported", e.Exchange, e.Pair)
}

func (e *UnsupportedPairError) Unwrap() error { return ErrUnsupportedPair }

type PrecisionError struct {
	Field string
	Value string
	// Places is the number of decimal places the target representation supports.
	Places int32
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("%s %s has more than %d decimal places", e.Field, e.Value, e.Places)
}

func (e *PrecisionError) Unwrap() error { return ErrPrecision }

// AdapterError carries the raw exchange text or payload fragment that caused the failure.
type AdapterError struct {
	Exchange string
	Op       string
	Msg      string
	Raw      string
}

func (e *AdapterError) Error() string {
	msg := e.Exchange + " " + e.Op + ": " + e.Msg
	if e.Raw != "" && e.Raw != e.Msg {
		msg += " (raw: " + e.Raw + ")"
	}
	return msg
}

func (e *AdapterError) Unwrap() error { return ErrAdapter }

type AuthenticationError struct {
	Exchange string
	Msg      string
	Status   int
}

func (e *AuthenticationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s authentication rejected (http %d): %s", e.Exchange, e.Status, e.Msg)
	}
	return e.Exchange + " authentication rejected: " + e.Msg
}

func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

type UnsupportedOperationError struct {
	Exchange string
	Op       string
}

func (e *UnsupportedOperationError) Error() string {
	return e.Exchange + ": " + e.Op + " is not available from this exchange"
}

func (e *UnsupportedOperationError) Unwrap() error { return ErrUnsupportedOperation }

// RawFragment trims a raw payload for inclusion in diagnostics.
func RawFragment(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
