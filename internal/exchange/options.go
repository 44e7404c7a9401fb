package exchange

import (
	"time"

	"coinbridge/internal/alert"
	"coinbridge/internal/auth"
	"coinbridge/internal/core"
	"coinbridge/internal/transport"
)

type Credentials struct {
	APIKey    string
	APISecret string
	// Username is required by exchanges that bind signatures to the account name.
	Username string
}

// Options configures one exchange facade. Only Transport is required for market data.
type Options struct {
	Credentials Credentials
	Transport   transport.Transport

	// Nonces is shared by facades in one process; nil creates a private provider.
	Nonces *auth.Provider
	// NonceSource replaces the exchange's default nonce strategy for this credential.
	NonceSource auth.Source

	Guard   Guard
	Alerter alert.Alerter
	Cache   AccountCache

	UnknownCurrency core.UnknownCurrencyPolicy
	ExtraCurrencies []string
	Now             func() time.Time
}

func (o Options) UnknownPolicy() core.UnknownCurrencyPolicy {
	if o.UnknownCurrency == "" {
		return core.SkipUnknown
	}
	return o.UnknownCurrency
}

func (o Options) KnownCurrencies() core.Currencies {
	return core.NewCurrencies(o.ExtraCurrencies...)
}

// NewBase wires a facade for profile. The credential scope is registered with the nonce
// provider using o.NonceSource, or defaultSource when none is given.
func NewBase(profile *Profile, o Options, defaultSource func() auth.Source) *Base {
	nonces := o.Nonces
	if nonces == nil {
		nonces = auth.NewProvider()
	}
	scope := auth.Scope(profile.Name, o.Credentials.APIKey)
	src := o.NonceSource
	if src == nil && defaultSource != nil {
		src = defaultSource()
	}
	if src != nil {
		nonces.Register(scope, src)
	}
	return &Base{
		Profile:   profile,
		Transport: o.Transport,
		Nonces:    nonces,
		Scope:     scope,
		Guard:     o.Guard,
		Alerter:   o.Alerter,
		Cache:     o.Cache,
	}
}
