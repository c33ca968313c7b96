package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fundscope/indexer/internal/chain"
)

// TokenReader fetches ERC-20 metadata from the chain.
type TokenReader interface {
	TokenMetadata(ctx context.Context, token common.Address) (chain.TokenInfo, error)
}

// TokenCache memoizes token metadata for the lifetime of the process.
// Symbol and decimals are immutable on the tokens we track, so entries
// never expire.
type TokenCache struct {
	reader TokenReader

	mu     sync.Mutex
	tokens map[common.Address]chain.TokenInfo
}

func NewTokenCache(reader TokenReader) *TokenCache {
	return &TokenCache{
		reader: reader,
		tokens: make(map[common.Address]chain.TokenInfo),
	}
}

// Get returns the token's metadata, reading from the chain on first use.
// Failed lookups are not cached, so transient RPC errors retry on the
// next call.
func (c *TokenCache) Get(ctx context.Context, token common.Address) (chain.TokenInfo, error) {
	c.mu.Lock()
	info, ok := c.tokens[token]
	c.mu.Unlock()
	if ok {
		return info, nil
	}

	info, err := c.reader.TokenMetadata(ctx, token)
	if err != nil {
		return chain.TokenInfo{}, fmt.Errorf("token metadata %s: %w", token.Hex(), err)
	}

	c.mu.Lock()
	c.tokens[token] = info
	c.mu.Unlock()
	return info, nil
}
