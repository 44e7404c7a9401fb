package core

import "sort"

// Registry is the immutable set of pairs one exchange lists.
type Registry struct {
	exchange string
	pairs    map[CurrencyPair]struct{}
}

func NewRegistry(exchange string, pairs ...CurrencyPair) *Registry {
	r := &Registry{
		exchange: exchange,
		pairs:    make(map[CurrencyPair]struct{}, len(pairs)),
	}
	for _, p := range pairs {
		r.pairs[p] = struct{}{}
	}
	return r
}

func (r *Registry) Exchange() string { return r.exchange }

func (r *Registry) IsSupported(pair CurrencyPair) bool {
	if r == nil {
		return false
	}
	_, ok := r.pairs[pair]
	return ok
}

// Check returns an UnsupportedPairError when pair is not listed.
func (r *Registry) Check(pair CurrencyPair) error {
	if r.IsSupported(pair) {
		return nil
	}
	name := ""
	if r != nil {
		name = r.exchange
	}
	return &UnsupportedPairError{Exchange: name, Pair: pair}
}

// SupportedPairs returns a sorted copy of the listed pairs.
func (r *Registry) SupportedPairs() []CurrencyPair {
	if r == nil {
		return nil
	}
	out := make([]CurrencyPair, 0, len(r.pairs))
	for p := range r.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Base != out[j].Base {
			return out[i].Base < out[j].Base
		}
		return out[i].Counter < out[j].Counter
	})
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.pairs)
}
