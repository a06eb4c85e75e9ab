package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// refreshConcurrency bounds the fan-out of the bulk refresh operations.
const refreshConcurrency = 8

// UpdatePoolReserves fetches the pool's reserves through a dryrun and
// caches them. Within the reserves TTL the cached snapshot is returned
// without any network traffic, and concurrent fetches for the same pool are
// collapsed into one dryrun.
func (c *Client) UpdatePoolReserves(ctx context.Context, pool domain.Pool) (domain.PoolReserves, error) {
	if r, ok := c.cache.Reserves(pool.ID); ok && time.Since(r.FetchedAt) < c.cfg.ReservesTTL {
		return r, nil
	}

	v, err, _ := c.reservesFlight.Do(pool.ID, func() (any, error) {
		return c.fetchReserves(ctx, pool)
	})
	if err != nil {
		return domain.PoolReserves{}, err
	}
	return v.(domain.PoolReserves), nil
}

func (c *Client) fetchReserves(ctx context.Context, pool domain.Pool) (domain.PoolReserves, error) {
	msgs, err := c.messenger.Dryrun(ctx, pool.ID, domain.Tags{{Name: "Action", Value: "Reserves"}}, nil)
	if err != nil {
		return domain.PoolReserves{}, fmt.Errorf("client: reserves of %s: %w", pool.ID, err)
	}
	if len(msgs) == 0 || msgs[0].Data == "" {
		return domain.PoolReserves{}, fmt.Errorf("client: reserves of %s: %w", pool.ID, domain.ErrUpstreamUnavailable)
	}

	// The pool replies with a token-id to amount map.
	var amounts map[string]string
	if err := json.Unmarshal([]byte(msgs[0].Data), &amounts); err != nil {
		return domain.PoolReserves{}, fmt.Errorf("client: decode reserves of %s: %w", pool.ID, err)
	}

	base, err := reserveAmount(amounts, pool.TokenBase.ID)
	if err != nil {
		return domain.PoolReserves{}, fmt.Errorf("client: reserves of %s: %w", pool.ID, err)
	}
	quote, err := reserveAmount(amounts, pool.TokenQuote.ID)
	if err != nil {
		return domain.PoolReserves{}, fmt.Errorf("client: reserves of %s: %w", pool.ID, err)
	}

	reserves := c.cache.SetReserves(pool.ID, base, quote)
	c.logger.Debug("pool reserves updated",
		slog.String("pool_id", pool.ID),
		slog.String("base", base.String()),
		slog.String("quote", quote.String()),
	)
	return reserves, nil
}

func reserveAmount(amounts map[string]string, tokenID string) (*big.Int, error) {
	raw, ok := amounts[tokenID]
	if !ok {
		return nil, fmt.Errorf("no reserve entry for token %s: %w", tokenID, domain.ErrUpstreamUnavailable)
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed reserve amount %q for token %s", raw, tokenID)
	}
	return amount, nil
}

// UpdateAllPoolReserves refreshes every known pool concurrently. Per-pool
// failures do not stop the sweep; the returned map carries an entry for each
// pool id with either its reserves or its error.
func (c *Client) UpdateAllPoolReserves(ctx context.Context) map[string]ReservesResult {
	pools := c.cache.Pools()
	results := make(map[string]ReservesResult, len(pools))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for _, pool := range pools {
		g.Go(func() error {
			reserves, err := c.UpdatePoolReserves(ctx, pool)
			mu.Lock()
			results[pool.ID] = ReservesResult{Reserves: reserves, Err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	return results
}

// ReservesResult is one pool's outcome of a bulk reserve refresh.
type ReservesResult struct {
	Reserves domain.PoolReserves
	Err      error
}

// UpdateTokenBalance fetches the wallet's balance on the token process and
// caches it. Concurrent fetches for the same token/wallet pair are collapsed
// into one dryrun.
func (c *Client) UpdateTokenBalance(ctx context.Context, token domain.Token, wallet string) (*big.Int, error) {
	v, err, _ := c.balancesFlight.Do(token.ID+"/"+wallet, func() (any, error) {
		return c.fetchBalance(ctx, token, wallet)
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

func (c *Client) fetchBalance(ctx context.Context, token domain.Token, wallet string) (*big.Int, error) {
	tags := domain.Tags{
		{Name: "Action", Value: "Balance"},
		{Name: "Recipient", Value: wallet},
	}
	msgs, err := c.messenger.Dryrun(ctx, token.ID, tags, nil)
	if err != nil {
		return nil, fmt.Errorf("client: balance of %s on %s: %w", wallet, token.Ticker, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("client: balance of %s on %s: %w", wallet, token.Ticker, domain.ErrUpstreamUnavailable)
	}

	raw := msgs[0].Tags.Get("Balance")
	if raw == "" {
		raw = msgs[0].Data
	}
	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("client: balance of %s on %s: malformed amount %q", wallet, token.Ticker, raw)
	}

	c.cache.SetBalance(token.ID, balance)
	return balance, nil
}

// UpdateAllTokenBalances refreshes the wallet's balance on every known token
// concurrently, with the same per-entity result semantics as
// UpdateAllPoolReserves.
func (c *Client) UpdateAllTokenBalances(ctx context.Context, wallet string) map[string]BalanceResult {
	tokens := c.cache.Tokens()
	results := make(map[string]BalanceResult, len(tokens))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for _, token := range tokens {
		g.Go(func() error {
			balance, err := c.UpdateTokenBalance(ctx, token, wallet)
			mu.Lock()
			results[token.ID] = BalanceResult{Balance: balance, Err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	return results
}

// BalanceResult is one token's outcome of a bulk balance refresh.
type BalanceResult struct {
	Balance *big.Int
	Err     error
}
