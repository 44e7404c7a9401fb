package bter

import (
	"encoding/json"
	"fmt"
	"strings"

	"coinbridge/internal/exchange"
)

// Result is BTER's success flag, sent as either a JSON bool or the strings "true"/"false".
type Result struct {
	OK  bool
	Set bool
}

func (r *Result) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*r = Result{OK: true, Set: true}
	case "false", "0":
		*r = Result{OK: false, Set: true}
	case "null", "":
		*r = Result{}
	default:
		return fmt.Errorf("unexpected result %s", data)
	}
	return nil
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Set {
		return []byte("null"), nil
	}
	return json.Marshal(fmt.Sprint(r.OK))
}

// Ticker reports volume once per currency of the pair as vol_<code>.
type Ticker struct {
	Result  Result                     `json:"result"`
	Msg     string                     `json:"msg,omitempty"`
	Last    exchange.Number            `json:"last"`
	High    exchange.Number            `json:"high"`
	Low     exchange.Number            `json:"low"`
	Avg     exchange.Number            `json:"avg"`
	Sell    exchange.Number            `json:"sell"`
	Buy     exchange.Number            `json:"buy"`
	Volumes map[string]exchange.Number `json:"-"`
}

func (t *Ticker) UnmarshalJSON(data []byte) error {
	type plain Ticker
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	p.Volumes = make(map[string]exchange.Number)
	for k, raw := range fields {
		if !strings.HasPrefix(k, "vol_") {
			continue
		}
		var n exchange.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		p.Volumes[strings.ToUpper(strings.TrimPrefix(k, "vol_"))] = n
	}
	*t = Ticker(p)
	return nil
}

type Depth struct {
	Result Result           `json:"result"`
	Msg    string           `json:"msg,omitempty"`
	Asks   []exchange.Level `json:"asks"`
	Bids   []exchange.Level `json:"bids"`
}

type Trade struct {
	Date   exchange.Number `json:"date"`
	Price  exchange.Number `json:"price"`
	Amount exchange.Number `json:"amount"`
	TID    exchange.Number `json:"tid"`
	Type   string          `json:"type"`
}

type TradeHistory struct {
	Result Result  `json:"result"`
	Msg    string  `json:"msg,omitempty"`
	Data   []Trade `json:"data"`
}

type Funds struct {
	Result         Result                     `json:"result"`
	Msg            string                     `json:"msg,omitempty"`
	AvailableFunds map[string]exchange.Number `json:"available_funds"`
	LockedFunds    map[string]exchange.Number `json:"locked_funds"`
}

type OrderResult struct {
	Result  Result          `json:"result"`
	Msg     string          `json:"msg,omitempty"`
	OrderID exchange.Number `json:"order_id"`
}
