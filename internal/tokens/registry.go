// Package tokens maps configured symbols to token references.
package tokens

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"liquidityPricer/internal/model"
)

// ErrUnknownToken is returned for symbols or addresses absent from the registry.
var ErrUnknownToken = errors.New("unknown token")

// Registry is an immutable symbol and address index of known tokens.
type Registry struct {
	bySymbol  map[string]model.TokenRef
	byAddress map[common.Address]model.TokenRef
	usd       []common.Address
}

// Entry is one configured token.
type Entry struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	// USD marks a stablecoin valued at exactly one dollar.
	USD bool
}

// NewRegistry indexes entries. Symbols are case-insensitive and must be
// unique, as must addresses. "USD" is reserved for the fiat pseudo-token.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{
		bySymbol:  make(map[string]model.TokenRef, len(entries)+1),
		byAddress: make(map[common.Address]model.TokenRef, len(entries)),
	}
	r.bySymbol[model.USDSymbol] = model.USD

	for _, e := range entries {
		symbol := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("token %s: symbol is required", e.Address.Hex())
		}
		if e.Address == (common.Address{}) {
			return nil, fmt.Errorf("token %s: address is required", symbol)
		}
		if _, dup := r.bySymbol[symbol]; dup {
			return nil, fmt.Errorf("token %s: duplicate symbol", symbol)
		}
		if _, dup := r.byAddress[e.Address]; dup {
			return nil, fmt.Errorf("token %s: duplicate address %s", symbol, e.Address.Hex())
		}
		ref := model.TokenRef{Address: e.Address, Symbol: symbol, Decimals: e.Decimals}
		r.bySymbol[symbol] = ref
		r.byAddress[e.Address] = ref
		if e.USD {
			r.usd = append(r.usd, e.Address)
		}
	}
	return r, nil
}

// Resolve returns the token registered under symbol.
func (r *Registry) Resolve(symbol string) (model.TokenRef, error) {
	ref, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return model.TokenRef{}, fmt.Errorf("%q: %w", symbol, ErrUnknownToken)
	}
	return ref, nil
}

// Lookup returns the token at address.
func (r *Registry) Lookup(address common.Address) (model.TokenRef, error) {
	ref, ok := r.byAddress[address]
	if !ok {
		return model.TokenRef{}, fmt.Errorf("%s: %w", address.Hex(), ErrUnknownToken)
	}
	return ref, nil
}

// ResolveAny accepts either a symbol or a hex address. Unregistered
// addresses are returned as bare references without metadata.
func (r *Registry) ResolveAny(value string) (model.TokenRef, error) {
	if common.IsHexAddress(value) {
		address := common.HexToAddress(value)
		if ref, err := r.Lookup(address); err == nil {
			return ref, nil
		}
		return model.TokenRef{Address: address}, nil
	}
	return r.Resolve(value)
}

// USDTokens returns the stablecoins flagged as USD references, in
// configuration order.
func (r *Registry) USDTokens() []common.Address {
	return append([]common.Address(nil), r.usd...)
}

// Symbols returns the registered symbols, sorted, excluding USD.
func (r *Registry) Symbols() []string {
	symbols := lo.Without(lo.Keys(r.bySymbol), model.USDSymbol)
	sort.Strings(symbols)
	return symbols
}
