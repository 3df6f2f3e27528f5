package entities

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

const resolvedTokenCacheSize = 256

// MetadataFetcher reads symbol and decimals for a token that is not part of
// the configured registry.
type MetadataFetcher interface {
	TokenMetadata(ctx context.Context, addr common.Address) (Token, error)
}

// TokenRegistry holds configured tokens indexed by address and symbol
type TokenRegistry struct {
	mu        sync.RWMutex
	byAddress map[common.Address]Token
	bySymbol  map[string]Token
	all       []Token
	resolved  *lru.Cache
}

// NewTokenRegistry creates a new token registry
func NewTokenRegistry() *TokenRegistry {
	resolved, _ := lru.New(resolvedTokenCacheSize)
	return &TokenRegistry{
		byAddress: make(map[common.Address]Token),
		bySymbol:  make(map[string]Token),
		all:       make([]Token, 0),
		resolved:  resolved,
	}
}

// Register adds a token to the registry
func (r *TokenRegistry) Register(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byAddress[token.Address]; ok {
		delete(r.bySymbol, strings.ToLower(old.Symbol))
		for i := range r.all {
			if r.all[i].Address == token.Address {
				r.all[i] = token
			}
		}
	} else {
		r.all = append(r.all, token)
	}
	r.byAddress[token.Address] = token
	r.bySymbol[strings.ToLower(token.Symbol)] = token
}

// GetByAddress returns a token by its address
func (r *TokenRegistry) GetByAddress(addr common.Address) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.byAddress[addr]
	return token, ok
}

// GetBySymbol returns a token by its symbol, ignoring case
func (r *TokenRegistry) GetBySymbol(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.bySymbol[strings.ToLower(symbol)]
	return token, ok
}

// GetAll returns all registered tokens
func (r *TokenRegistry) GetAll() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Token, len(r.all))
	copy(out, r.all)
	return out
}

// Count returns the number of registered tokens
func (r *TokenRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// Lookup resolves a symbol or hex address. Addresses outside the registry
// are fetched once through fetcher and remembered; fetcher may be nil.
func (r *TokenRegistry) Lookup(ctx context.Context, ref string, fetcher MetadataFetcher) (Token, error) {
	if token, ok := r.GetBySymbol(ref); ok {
		return token, nil
	}
	if !common.IsHexAddress(ref) {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, ref)
	}

	addr := common.HexToAddress(ref)
	if token, ok := r.GetByAddress(addr); ok {
		return token, nil
	}
	if cached, ok := r.resolved.Get(addr); ok {
		return cached.(Token), nil
	}
	if fetcher == nil {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, ref)
	}

	token, err := fetcher.TokenMetadata(ctx, addr)
	if err != nil {
		return Token{}, fmt.Errorf("failed to resolve token %s: %w", ref, err)
	}
	r.resolved.Add(addr, token)
	return token, nil
}

// DefaultRegistry returns a registry with the Gnosis Chain futarchy tokens
func DefaultRegistry() *TokenRegistry {
	r := NewTokenRegistry()
	for _, t := range []Token{SDAI, GNO, WAGNO, SDAIYes, SDAINo, GNOYes, GNONo} {
		r.Register(t)
	}
	return r
}
