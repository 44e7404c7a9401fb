package exchange

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"coinbridge/internal/alert"
	"coinbridge/internal/auth"
	"coinbridge/internal/core"
	"coinbridge/internal/transport"
)

// AccountCache holds account snapshots for a bounded time. Get never returns an entry
// older than the cache's TTL.
type AccountCache interface {
	Get(ctx context.Context, key string) (core.AccountInfo, bool, error)
	Put(ctx context.Context, key string, info core.AccountInfo) error
}

// Guard gates signed calls per exchange, see safety.Breaker.
type Guard interface {
	Allow(exchange string) error
	Record(exchange string, authErr error) error
}

// Base is the orchestration shared by every exchange facade: transport, nonce issuance,
// credential-rejection handling and the optional account cache.
type Base struct {
	Profile   *Profile
	Transport transport.Transport
	Nonces    *auth.Provider
	Scope     string

	Guard   Guard
	Alerter alert.Alerter
	Cache   AccountCache
}

func (b *Base) Name() string { return b.Profile.Name }

// Fetch performs an unsigned call and decodes the body into out.
func (b *Base) Fetch(ctx context.Context, op string, req transport.Request, out any) ([]byte, error) {
	body, err := b.Transport.Do(ctx, req)
	if err != nil {
		return nil, b.transportError(op, err, false)
	}
	if err := b.Profile.EmbeddedError(op, body); err != nil {
		return body, err
	}
	if err := b.decode(op, body, out); err != nil {
		return body, err
	}
	return body, nil
}

// FetchSigned draws the next nonce for the credential scope, lets build sign the request
// with it and performs the call. A nonce drawn for a call that later fails is never reused.
// An embedded error found in the body is already settled when returned.
func (b *Base) FetchSigned(ctx context.Context, op string, build func(nonce int64) (transport.Request, error), out any) ([]byte, error) {
	if b.Guard != nil {
		if err := b.Guard.Allow(b.Name()); err != nil {
			return nil, err
		}
	}
	if b.Nonces == nil {
		return nil, fmt.Errorf("%s %s: nonce provider not configured", b.Name(), op)
	}
	nonce, err := b.Nonces.NextNonce(ctx, b.Scope)
	if err != nil {
		if errors.Is(err, core.ErrNonceExhausted) {
			log.Printf("level=ERROR event=nonce_exhausted exchange=%q scope=%q err=%q", b.Name(), b.Scope, err.Error())
			b.alert("nonce_exhausted", map[string]string{"exchange": b.Name(), "err": err.Error()})
		}
		return nil, fmt.Errorf("%s %s: %w", b.Name(), op, err)
	}
	req, err := build(nonce)
	if err != nil {
		return nil, err
	}
	body, err := b.Transport.Do(ctx, req)
	if err != nil {
		return nil, b.transportError(op, err, true)
	}
	if err := b.Profile.EmbeddedError(op, body); err != nil {
		return body, b.Settle(err)
	}
	if err := b.decode(op, body, out); err != nil {
		return body, err
	}
	return body, nil
}

// WithBody replaces the fragment of an AdapterError in err with the response body the
// adapted record was decoded from, so fields the record does not declare stay visible.
func (b *Base) WithBody(err error, body []byte) error {
	var adapterErr *core.AdapterError
	if len(body) > 0 && errors.As(err, &adapterErr) {
		adapterErr.Raw = core.RawFragment(body)
	}
	return err
}

// Settle finishes a signed call after adaptation. Embedded messages that reject the
// credentials are promoted to AuthenticationError joined with the AdapterError.
func (b *Base) Settle(err error) error {
	if err == nil {
		if b.Guard != nil {
			_ = b.Guard.Record(b.Name(), nil)
		}
		return nil
	}
	if authErr, ok := classifyAuth(b.Name(), err); ok {
		return b.rejected(authErr, err)
	}
	return err
}

func (b *Base) transportError(op string, err error, signed bool) error {
	if signed {
		if authErr, ok := classifyAuth(b.Name(), err); ok {
			return b.rejected(authErr, err)
		}
	}
	return fmt.Errorf("%s %s: %w", b.Name(), op, err)
}

func (b *Base) rejected(authErr *core.AuthenticationError, cause error) error {
	log.Printf("level=WARN event=auth_rejected exchange=%q status=%d msg=%q", b.Name(), authErr.Status, authErr.Msg)
	b.alert("auth_rejected", map[string]string{
		"exchange": b.Name(),
		"status":   strconv.Itoa(authErr.Status),
		"msg":      authErr.Msg,
	})
	errs := []error{authErr, cause}
	if b.Guard != nil {
		if tripErr := b.Guard.Record(b.Name(), authErr); tripErr != nil {
			errs = append(errs, tripErr)
		}
	}
	return errors.Join(errs...)
}

func (b *Base) decode(op string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := transport.DecodeJSON(body, out); err != nil {
		return b.Profile.Malformed(op, "decode response: "+err.Error(), body)
	}
	return nil
}

func (b *Base) alert(event string, fields map[string]string) {
	if b.Alerter != nil {
		b.Alerter.Important(event, fields)
	}
}

// CachedAccount serves the account snapshot from the cache when it is younger than the
// cache TTL and otherwise calls load and stores its result. Cache failures fall through to load.
func (b *Base) CachedAccount(ctx context.Context, load func(context.Context) (core.AccountInfo, error)) (core.AccountInfo, error) {
	if b.Cache == nil {
		return load(ctx)
	}
	info, ok, err := b.Cache.Get(ctx, b.Scope)
	if err != nil {
		log.Printf("level=WARN event=account_cache_failed exchange=%q op=get err=%q", b.Name(), err.Error())
	}
	if ok {
		log.Printf("level=DEBUG event=account_cache_hit exchange=%q", b.Name())
		return info, nil
	}
	info, err = load(ctx)
	if err != nil {
		return core.AccountInfo{}, err
	}
	if err := b.Cache.Put(ctx, b.Scope, info); err != nil {
		log.Printf("level=WARN event=account_cache_failed exchange=%q op=put err=%q", b.Name(), err.Error())
	}
	return info, nil
}
