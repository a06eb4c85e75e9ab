// Package cache holds the client session's mutable directory and balance
// state: tokens, pools, and perp markets by id and ticker, wallet balances,
// and pool reserves stamped with their fetch time.
//
// The cache is read-mostly. Writes are whole-value replacements of a single
// key under a short lock, so concurrent operations see either the old or the
// new entry, never a partial update.
package cache

import (
	"math/big"
	"sync"
	"time"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// Cache is the per-session store. The zero value is not usable; use New or
// FromSnapshot.
type Cache struct {
	mu sync.RWMutex

	tokens         map[string]domain.Token
	tokensByTicker map[string]string

	pools       map[string]domain.Pool
	poolsByPair map[string]string

	perpMarkets map[string]domain.PerpMarket

	balances map[string]*big.Int
	reserves map[string]domain.PoolReserves
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		tokens:         make(map[string]domain.Token),
		tokensByTicker: make(map[string]string),
		pools:          make(map[string]domain.Pool),
		poolsByPair:    make(map[string]string),
		perpMarkets:    make(map[string]domain.PerpMarket),
		balances:       make(map[string]*big.Int),
		reserves:       make(map[string]domain.PoolReserves),
	}
}

// PutTokens adds tokens to the directory, indexing by id and ticker.
func (c *Cache) PutTokens(tokens []domain.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tokens {
		c.tokens[t.ID] = t
		c.tokensByTicker[t.Ticker] = t.ID
	}
}

// Token looks up a token by id.
func (c *Cache) Token(id string) (domain.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[id]
	return t, ok
}

// TokenByTicker looks up a token by its exact, case-sensitive ticker.
func (c *Cache) TokenByTicker(ticker string) (domain.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.tokensByTicker[ticker]
	if !ok {
		return domain.Token{}, false
	}
	t, ok := c.tokens[id]
	return t, ok
}

// Tokens returns all tokens in the directory.
func (c *Cache) Tokens() []domain.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Token, 0, len(c.tokens))
	for _, t := range c.tokens {
		out = append(out, t)
	}
	return out
}

// HasTokens reports whether the token directory has been populated, used to
// make directory fetches lazy no-ops.
func (c *Cache) HasTokens() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens) > 0
}

// PutPools adds pools to the directory, indexing by id and "BASE/QUOTE"
// ticker pair.
func (c *Cache) PutPools(pools []domain.Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pools {
		c.pools[p.ID] = p
		c.poolsByPair[p.TickerPair()] = p.ID
	}
}

// Pool looks up a pool by id.
func (c *Cache) Pool(id string) (domain.Pool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pools[id]
	return p, ok
}

// PoolByPair looks up a pool by its exact "BASE/QUOTE" ticker pair.
func (c *Cache) PoolByPair(pair string) (domain.Pool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.poolsByPair[pair]
	if !ok {
		return domain.Pool{}, false
	}
	p, ok := c.pools[id]
	return p, ok
}

// Pools returns all pools in the directory.
func (c *Cache) Pools() []domain.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Pool, 0, len(c.pools))
	for _, p := range c.pools {
		out = append(out, p)
	}
	return out
}

// HasPools reports whether the pool directory has been populated.
func (c *Cache) HasPools() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pools) > 0
}

// PutPerpMarkets adds perp markets to the directory.
func (c *Cache) PutPerpMarkets(markets []domain.PerpMarket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range markets {
		c.perpMarkets[m.ID] = m
	}
}

// PerpMarket looks up a perp market by id.
func (c *Cache) PerpMarket(id string) (domain.PerpMarket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.perpMarkets[id]
	return m, ok
}

// PerpMarketByTicker looks up a perp market by its exact base ticker.
func (c *Cache) PerpMarketByTicker(ticker string) (domain.PerpMarket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.perpMarkets {
		if m.BaseTicker == ticker {
			return m, true
		}
	}
	return domain.PerpMarket{}, false
}

// PerpMarkets returns all perp markets in the directory.
func (c *Cache) PerpMarkets() []domain.PerpMarket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.PerpMarket, 0, len(c.perpMarkets))
	for _, m := range c.perpMarkets {
		out = append(out, m)
	}
	return out
}

// HasPerpMarkets reports whether the perp market directory has been
// populated.
func (c *Cache) HasPerpMarkets() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.perpMarkets) > 0
}

// Balance returns the cached wallet balance for a token.
func (c *Cache) Balance(tokenID string) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.balances[tokenID]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(b), true
}

// SetBalance replaces the cached wallet balance for a token.
func (c *Cache) SetBalance(tokenID string, balance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[tokenID] = new(big.Int).Set(balance)
}

// Reserves returns the cached reserves snapshot for a pool.
func (c *Cache) Reserves(poolID string) (domain.PoolReserves, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.reserves[poolID]
	return r, ok
}

// SetReserves atomically replaces a pool's reserves, stamping the fetch
// time. Both balances always land together.
func (c *Cache) SetReserves(poolID string, base, quote *big.Int) domain.PoolReserves {
	r := domain.PoolReserves{
		Base:      new(big.Int).Set(base),
		Quote:     new(big.Int).Set(quote),
		FetchedAt: time.Now(),
	}
	c.mu.Lock()
	c.reserves[poolID] = r
	c.mu.Unlock()
	return r
}

// AdjustReserves applies deltas to a pool's cached reserves without
// touching the fetch timestamp, so a later TTL expiry still forces a real
// re-fetch. Used for optimistic post-trade updates. It is a no-op when no
// reserves are cached.
func (c *Cache) AdjustReserves(poolID string, baseDelta, quoteDelta *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reserves[poolID]
	if !ok {
		return
	}
	c.reserves[poolID] = domain.PoolReserves{
		Base:      new(big.Int).Add(r.Base, baseDelta),
		Quote:     new(big.Int).Add(r.Quote, quoteDelta),
		FetchedAt: r.FetchedAt,
	}
}
