package types

import (
	"context"
	"net/http"
	"time"

	"github.com/lumen-network/balancex/pkg/db/ledger"
	"github.com/lumen-network/balancex/pkg/reconcile"
	"github.com/lumen-network/balancex/pkg/redis"
	"github.com/lumen-network/balancex/pkg/rpc"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	LedgerDB *ledger.DB
	// Oracle is the chain node client; also serves token metadata.
	Oracle      *rpc.HTTPClient
	Reconciler  *reconcile.Reconciler
	Resolver    *reconcile.BlockResolver
	Cursors     *reconcile.CursorCodec
	RedisClient *redis.Client
	// TokenMeta caches immutable token descriptors by contract.
	TokenMeta *xsync.Map[string, *rpc.TokenMetadata]
	Cron      *cron.Cron
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// LoadTokenMetadata returns the descriptor for a token contract, fetching it
// from the node on first use. Metadata is immutable after deployment, so a
// hit never needs revalidation.
func (a *App) LoadTokenMetadata(ctx context.Context, contract string) (*rpc.TokenMetadata, bool) {
	meta, ok := a.TokenMeta.Load(contract)
	if ok {
		return meta, true
	}

	meta, err := a.Oracle.TokenMetadataByContract(ctx, contract)
	if err != nil {
		a.Logger.Debug("Token metadata lookup failed",
			zap.String("contract", contract), zap.Error(err))
		return nil, false
	}

	a.TokenMeta.Store(contract, meta)
	return meta, true
}

// SetupLagReporter schedules a periodic job logging the age of the newest
// indexed block. A growing lag means history requests will keep failing the
// oracle cross-check on the freshest blocks.
func (a *App) SetupLagReporter(ctx context.Context, spec string) error {
	a.Cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := a.Cron.AddFunc(spec, func() {
		block, err := a.LedgerDB.LatestBlock(ctx)
		if err != nil {
			a.Logger.Warn("Head-lag probe failed", zap.Error(err))
			return
		}
		if block == nil {
			a.Logger.Warn("Head-lag probe: no blocks indexed yet")
			return
		}

		lag := time.Since(time.Unix(0, int64(block.Timestamp)))
		a.Logger.Info("Indexer head lag",
			zap.Uint64("height", block.Height),
			zap.Duration("lag", lag))
	})
	return err
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	if a.Cron != nil {
		a.Cron.Start()
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	if err := a.LedgerDB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
