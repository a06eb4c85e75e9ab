// Package client is the SDK facade. It owns the session cache, wires the
// metadata API, the gateway correlation protocol, and the message submission
// service together, and exposes the public trading operations: swap, place
// and cancel perp orders, and collateral deposits.
//
// Operation failures are returned as typed error values (see
// internal/domain): callers branch on ValidationError, TickSizeError,
// ConfirmationTimeoutError, RemoteFailureError, or the sentinel errors.
// Nothing here panics on runtime conditions.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/perplexfi/perplex-go/internal/cache"
	"github.com/perplexfi/perplex-go/internal/domain"
	"github.com/perplexfi/perplex-go/internal/platform/ao"
	"github.com/perplexfi/perplex-go/internal/platform/gateway"
	"github.com/perplexfi/perplex-go/internal/platform/perplexapi"
)

// Gateway is the slice of the gateway client the facade uses, abstracted for
// testing against fakes.
type Gateway interface {
	LookForMessage(ctx context.Context, filters []gateway.TagFilter, validate gateway.Validator, opts gateway.PollOptions) (*domain.AoMessage, error)
	GetMessage(ctx context.Context, id string) (*domain.AoMessage, error)
}

// MetadataAPI is the slice of the exchange metadata API the facade uses.
type MetadataAPI interface {
	Tokens(ctx context.Context) ([]domain.Token, error)
	Pools(ctx context.Context) ([]domain.Pool, error)
	PerpMarkets(ctx context.Context) ([]domain.PerpMarket, error)
	MarketDepth(ctx context.Context, marketID string) (domain.OrderBook, error)
	LatestFundingRate(ctx context.Context, marketID string) (string, error)
	Positions(ctx context.Context, wallet string) ([]perplexapi.RawPosition, error)
}

// Journal persists confirmed trades for audit. Recording is best-effort:
// journal failures are logged, never surfaced to the trading operation.
type Journal interface {
	RecordSwap(ctx context.Context, wallet string, swap domain.Swap) error
	RecordOrder(ctx context.Context, wallet, marketID string, order domain.PerpOrder) error
}

// Config configures a client session. Malformed configuration is a
// programming error and fails construction.
type Config struct {
	// APIURL is the exchange metadata GraphQL endpoint.
	APIURL string
	// GatewayURL is the ledger gateway/indexer GraphQL endpoint.
	GatewayURL string
	// MessengerURL and ComputeURL are the message-submission and dryrun
	// endpoints.
	MessengerURL string
	ComputeURL   string

	// ReservesTTL gates pool reserve re-fetches; within the window cached
	// reserves are served as-is. Defaults to one minute.
	ReservesTTL time.Duration
	// SummaryTTL gates account summary re-fetches. Defaults to one minute.
	SummaryTTL time.Duration

	// Poll bounds every confirmation poll. Defaults to 40 retries at 500ms.
	Poll gateway.PollOptions
}

// Validate checks the configuration for use.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return &domain.ValidationError{Field: "config.APIURL", Reason: "must not be empty"}
	}
	if c.GatewayURL == "" {
		return &domain.ValidationError{Field: "config.GatewayURL", Reason: "must not be empty"}
	}
	if c.MessengerURL == "" {
		return &domain.ValidationError{Field: "config.MessengerURL", Reason: "must not be empty"}
	}
	if c.ComputeURL == "" {
		return &domain.ValidationError{Field: "config.ComputeURL", Reason: "must not be empty"}
	}
	if c.ReservesTTL < 0 || c.SummaryTTL < 0 {
		return &domain.ValidationError{Field: "config.TTL", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ReservesTTL == 0 {
		c.ReservesTTL = time.Minute
	}
	if c.SummaryTTL == 0 {
		c.SummaryTTL = time.Minute
	}
	if c.Poll.MaxRetries == 0 {
		c.Poll = gateway.DefaultPollOptions
	}
	return c
}

// Client is a session against the exchange. A single instance supports
// arbitrarily many concurrent operations: each carries its own poll state,
// and the shared cache is read-mostly with atomic single-key writes.
type Client struct {
	cfg       Config
	api       MetadataAPI
	gateway   Gateway
	messenger ao.Messenger
	cache     *cache.Cache
	journal   Journal
	logger    *slog.Logger

	reservesFlight singleflight.Group
	balancesFlight singleflight.Group

	summaryMu sync.RWMutex
	summaries map[string]summaryEntry
}

type summaryEntry struct {
	fetchedAt time.Time
	summary   domain.AccountSummary
}

// New creates a client session with real collaborators. The returned client
// has an empty directory; call Initialize (or LoadCold) before trading.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:       cfg,
		api:       perplexapi.NewClient(cfg.APIURL),
		gateway:   gateway.NewClient(cfg.GatewayURL),
		messenger: ao.NewClient(cfg.MessengerURL, cfg.ComputeURL),
		cache:     cache.New(),
		logger:    logger,
		summaries: make(map[string]summaryEntry),
	}, nil
}

// WithJournal attaches a trade journal. Without one, confirmed trades are
// not persisted anywhere.
func (c *Client) WithJournal(j Journal) *Client {
	c.journal = j
	return c
}

// Initialize populates the token, pool, and perp market directories from the
// metadata API. Directories that are already populated are left untouched,
// so Initialize is cheap to call again after LoadCold.
func (c *Client) Initialize(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if !c.cache.HasTokens() {
		g.Go(func() error {
			tokens, err := c.api.Tokens(ctx)
			if err != nil {
				return err
			}
			c.cache.PutTokens(tokens)
			return nil
		})
	}
	if !c.cache.HasPools() {
		g.Go(func() error {
			pools, err := c.api.Pools(ctx)
			if err != nil {
				return err
			}
			c.cache.PutPools(pools)
			return nil
		})
	}
	if !c.cache.HasPerpMarkets() {
		g.Go(func() error {
			markets, err := c.api.PerpMarkets(ctx)
			if err != nil {
				return err
			}
			c.cache.PutPerpMarkets(markets)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("client: initialize: %w", err)
	}

	c.logger.Info("directory initialized",
		slog.Int("tokens", len(c.cache.Tokens())),
		slog.Int("pools", len(c.cache.Pools())),
		slog.Int("perp_markets", len(c.cache.PerpMarkets())),
	)
	return nil
}

// GetTokenByID looks up a token by process id.
func (c *Client) GetTokenByID(id string) (domain.Token, error) {
	if t, ok := c.cache.Token(id); ok {
		return t, nil
	}
	return domain.Token{}, fmt.Errorf("client: token %s: %w", id, domain.ErrNotFound)
}

// GetToken looks up a token by its exact, case-sensitive ticker.
func (c *Client) GetToken(ticker string) (domain.Token, error) {
	if t, ok := c.cache.TokenByTicker(ticker); ok {
		return t, nil
	}
	return domain.Token{}, fmt.Errorf("client: token %q: %w", ticker, domain.ErrNotFound)
}

// GetPoolByID looks up a pool by process id.
func (c *Client) GetPoolByID(id string) (domain.Pool, error) {
	if p, ok := c.cache.Pool(id); ok {
		return p, nil
	}
	return domain.Pool{}, fmt.Errorf("client: pool %s: %w", id, domain.ErrNotFound)
}

// GetPool looks up a pool by its exact "BASE/QUOTE" ticker pair.
func (c *Client) GetPool(pair string) (domain.Pool, error) {
	if p, ok := c.cache.PoolByPair(pair); ok {
		return p, nil
	}
	return domain.Pool{}, fmt.Errorf("client: pool %q: %w", pair, domain.ErrNotFound)
}

// GetPerpMarketByID looks up a perp market by process id.
func (c *Client) GetPerpMarketByID(id string) (domain.PerpMarket, error) {
	if m, ok := c.cache.PerpMarket(id); ok {
		return m, nil
	}
	return domain.PerpMarket{}, fmt.Errorf("client: perp market %s: %w", id, domain.ErrNotFound)
}

// GetPerpMarket looks up a perp market by its exact base ticker.
func (c *Client) GetPerpMarket(ticker string) (domain.PerpMarket, error) {
	if m, ok := c.cache.PerpMarketByTicker(ticker); ok {
		return m, nil
	}
	return domain.PerpMarket{}, fmt.Errorf("client: perp market %q: %w", ticker, domain.ErrNotFound)
}

// Tokens lists every token in the directory.
func (c *Client) Tokens() []domain.Token {
	return c.cache.Tokens()
}

// Pools lists every pool in the directory.
func (c *Client) Pools() []domain.Pool {
	return c.cache.Pools()
}

// PerpMarkets lists every perp market in the directory.
func (c *Client) PerpMarkets() []domain.PerpMarket {
	return c.cache.PerpMarkets()
}

// SnapshotCold captures the directory state for explicit cold
// serialization. Reserves and balances are never included.
func (c *Client) SnapshotCold() cache.Snapshot {
	return c.cache.Snapshot()
}

// LoadCold seeds the directory from a previously serialized snapshot,
// replacing the current cache. Live data (reserves, balances) starts empty.
func (c *Client) LoadCold(snap cache.Snapshot) error {
	seeded, err := cache.FromSnapshot(snap)
	if err != nil {
		return fmt.Errorf("client: load cold cache: %w", err)
	}
	c.cache = seeded
	return nil
}
