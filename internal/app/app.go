// Package app wires configuration into a running client session: signer,
// facade, trade journal, snapshot mirror, and archive. It also implements
// the CLI subcommands on top of the wired session.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/perplexfi/perplex-go/internal/blob/s3"
	"github.com/perplexfi/perplex-go/internal/cache/redis"
	"github.com/perplexfi/perplex-go/internal/client"
	"github.com/perplexfi/perplex-go/internal/config"
	"github.com/perplexfi/perplex-go/internal/crypto"
	"github.com/perplexfi/perplex-go/internal/domain"
	"github.com/perplexfi/perplex-go/internal/feed"
	"github.com/perplexfi/perplex-go/internal/platform/gateway"
	"github.com/perplexfi/perplex-go/internal/store/postgres"
)

// App holds the wired session and its optional side components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	client   *client.Client
	signer   *crypto.KeySigner
	pg       *postgres.Client
	mirror   *redis.SnapshotStore
	archiver *s3blob.Archiver
	stream   *feed.Client
}

// New wires an App from configuration. Optional components (journal,
// mirror, archive, feed) are only constructed when configured; the signer is
// only required for commands that submit messages, so a missing wallet is
// not an error here.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	cl, err := client.New(client.Config{
		APIURL:       cfg.API.URL,
		GatewayURL:   cfg.Gateway.URL,
		MessengerURL: cfg.Messenger.MuURL,
		ComputeURL:   cfg.Messenger.CuURL,
		ReservesTTL:  cfg.Cache.ReservesTTL.Duration,
		SummaryTTL:   cfg.Cache.SummaryTTL.Duration,
		Poll: gateway.PollOptions{
			MaxRetries: cfg.Poll.MaxRetries,
			RetryAfter: cfg.Poll.RetryAfter.Duration,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	a.client = cl

	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.KeyfilePath != "" {
		signer, err := crypto.LoadSigner(crypto.KeySource{
			PrivateKeyHex: cfg.Wallet.PrivateKey,
			KeyfilePath:   cfg.Wallet.KeyfilePath,
			KeyPassword:   cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("app: load signer: %w", err)
		}
		a.signer = signer
		logger.Info("wallet loaded", slog.String("address", signer.Address()))
	}

	if cfg.JournalEnabled() {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("app: connect journal: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("app: run migrations: %w", err)
			}
		}
		a.pg = pg
		a.client.WithJournal(postgres.NewJournal(pg.Pool()))
		logger.Info("trade journal enabled")
	}

	if cfg.MirrorEnabled() {
		mirror, err := redis.NewSnapshotStore(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Namespace, cfg.Redis.SnapshotTTL.Duration)
		if err != nil {
			return nil, fmt.Errorf("app: connect snapshot mirror: %w", err)
		}
		a.mirror = mirror
		logger.Info("snapshot mirror enabled", slog.String("namespace", cfg.Redis.Namespace))
	}

	if cfg.ArchiveEnabled() {
		archiver, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("app: connect snapshot archive: %w", err)
		}
		a.archiver = archiver
		logger.Info("snapshot archive enabled", slog.String("bucket", cfg.S3.Bucket))
	}

	if cfg.Feed.Enabled {
		a.stream = feed.NewClient(cfg.Feed.URL)
	}

	return a, nil
}

// Client returns the wired session facade.
func (a *App) Client() *client.Client {
	return a.client
}

// Signer returns the loaded signing identity, or nil when no wallet is
// configured.
func (a *App) Signer() *crypto.KeySigner {
	return a.signer
}

// Close tears down the side components. The facade itself holds no
// persistent connections.
func (a *App) Close() {
	if a.stream != nil {
		_ = a.stream.Close()
	}
	if a.mirror != nil {
		_ = a.mirror.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

// Initialize warms the directory: first from the Redis mirror when one is
// configured and holds a fresh snapshot, then from the metadata API for
// whatever is still missing. The merged directory is mirrored back.
func (a *App) Initialize(ctx context.Context) error {
	if a.mirror != nil {
		if snap, err := a.mirror.Load(ctx); err == nil {
			if err := a.client.LoadCold(snap); err != nil {
				a.logger.Warn("mirrored snapshot rejected", slog.String("error", err.Error()))
			} else {
				a.logger.Info("directory seeded from mirror")
			}
		}
	}

	if err := a.client.Initialize(ctx); err != nil {
		return err
	}

	if a.mirror != nil {
		if err := a.mirror.Save(ctx, a.client.SnapshotCold()); err != nil {
			a.logger.Warn("mirror save failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Archive writes the current directory snapshot to the S3 archive.
func (a *App) Archive(ctx context.Context) (string, error) {
	if a.archiver == nil {
		return "", fmt.Errorf("app: snapshot archive not configured")
	}
	key, err := a.archiver.PutSnapshot(ctx, a.cfg.Redis.Namespace, a.client.SnapshotCold())
	if err != nil {
		return "", err
	}
	a.logger.Info("snapshot archived", slog.String("key", key))
	return key, nil
}

// Restore seeds the directory from the latest archived snapshot.
func (a *App) Restore(ctx context.Context) error {
	if a.archiver == nil {
		return fmt.Errorf("app: snapshot archive not configured")
	}
	snap, err := a.archiver.GetLatestSnapshot(ctx, a.cfg.Redis.Namespace)
	if err != nil {
		return err
	}
	return a.client.LoadCold(snap)
}

// Watch connects the market data feed, subscribes to every known perp
// market, and logs updates until the context is canceled.
func (a *App) Watch(ctx context.Context) error {
	if a.stream == nil {
		return fmt.Errorf("app: feed not configured")
	}

	markets, err := a.marketIDs()
	if err != nil {
		return err
	}

	a.stream.OnDepth(func(marketID string, book domain.OrderBook) {
		a.logger.Info("depth",
			slog.String("market_id", marketID),
			slog.Int("asks", len(book.Asks)),
			slog.Int("bids", len(book.Bids)),
		)
	})
	a.stream.OnFunding(func(marketID, rate string) {
		a.logger.Info("funding", slog.String("market_id", marketID), slog.String("rate", rate))
	})

	if err := a.stream.Connect(ctx); err != nil {
		return err
	}
	if err := a.stream.Subscribe([]string{"depth", "funding"}, markets); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

func (a *App) marketIDs() ([]string, error) {
	deadline, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.client.Initialize(deadline); err != nil {
		return nil, err
	}

	var ids []string
	for _, m := range a.client.PerpMarkets() {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
