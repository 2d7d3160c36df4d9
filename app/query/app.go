package query

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/lumen-network/balancex/app/query/types"
	"github.com/lumen-network/balancex/pkg/db/clickhouse"
	"github.com/lumen-network/balancex/pkg/db/ledger"
	"github.com/lumen-network/balancex/pkg/logging"
	"github.com/lumen-network/balancex/pkg/reconcile"
	"github.com/lumen-network/balancex/pkg/redis"
	"github.com/lumen-network/balancex/pkg/rpc"
	"github.com/lumen-network/balancex/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	chClient, chErr := clickhouse.New(ctx, logger, utils.Env("CLICKHOUSE_DATABASE", "ledger"))
	if chErr != nil {
		logger.Fatal("Unable to connect to ClickHouse", zap.Error(chErr))
	}

	ledgerDb := ledger.New(&chClient, logger)
	if utils.Env("CLICKHOUSE_ENSURE_SCHEMA", "false") == "true" {
		if err := ledgerDb.EnsureSchema(ctx); err != nil {
			logger.Fatal("Unable to ensure ledger schema", zap.Error(err))
		}
	}

	oracle := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: strings.Split(utils.Env("NODE_RPC_ENDPOINTS", "http://localhost:50000"), ","),
		Timeout:   time.Duration(utils.EnvInt("NODE_RPC_TIMEOUT_SECONDS", 15)) * time.Second,
		RPS:       utils.EnvInt("NODE_RPC_RPS", 20),
	})

	// The low-water-mark pins the oldest event index served; cursors below
	// it would page into history the indexer never backfilled.
	lowWaterMark := big.NewInt(0)
	if raw := utils.Env("BACKFILL_LOW_WATER_MARK", ""); raw != "" {
		if _, ok := lowWaterMark.SetString(raw, 10); !ok {
			logger.Fatal("Invalid BACKFILL_LOW_WATER_MARK", zap.String("value", raw))
		}
	}

	// Initialize Redis client for real-time WebSocket events (optional)
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	app := &types.App{
		LedgerDB:    ledgerDb,
		Oracle:      oracle,
		Reconciler:  reconcile.NewReconciler(ledgerDb, &reconcile.NodeOracle{Client: oracle}, logger),
		Resolver:    &reconcile.BlockResolver{Blocks: ledgerDb},
		Cursors:     reconcile.NewCursorCodec(lowWaterMark),
		RedisClient: redisClient,
		TokenMeta:   xsync.NewMap[string, *rpc.TokenMetadata](),
		Logger:      logger,
	}

	if err := app.SetupLagReporter(ctx, utils.Env("HEAD_LAG_CRON", "@every 1m")); err != nil {
		logger.Fatal("Unable to schedule head-lag reporter", zap.Error(err))
	}

	return app
}
