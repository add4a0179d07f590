package main

import (
	"context"
	"net/http"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/DomeLiquid/liquidator/chain"
	"github.com/DomeLiquid/liquidator/config"
	"github.com/DomeLiquid/liquidator/engine"
	"github.com/DomeLiquid/liquidator/notify"
	"github.com/DomeLiquid/liquidator/oracle"
	"github.com/DomeLiquid/liquidator/store"
	"github.com/DomeLiquid/liquidator/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// App owns every long-lived client of the process.
type App struct {
	cfg        *config.Config
	log        core.Log
	client     *ethclient.Client
	rdb        *redis.Client
	db         *gorm.DB
	registry   *prometheus.Registry
	liquidator *engine.Liquidator
	scanner    *engine.Scanner
}

func newApp(ctx context.Context, cfg *config.Config, log core.Log) (*App, error) {
	clk := clock.New()
	app := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}

	client, err := chain.Dial(ctx, cfg.Chain.RpcURL)
	if err != nil {
		return nil, err
	}
	app.client = client

	senderCfg := chain.SenderConfig{
		GasLimit:            cfg.Chain.GasLimit,
		ConfirmationTimeout: cfg.Chain.ConfirmationTimeout.Duration,
		PollInterval:        cfg.Chain.PollInterval.Duration,
	}
	if cfg.Chain.GasPriceGwei.IsPositive() {
		senderCfg.GasPrice = utils.ToWei(cfg.Chain.GasPriceGwei, 9)
	}
	sender, err := chain.NewSender(ctx, client, cfg.Chain.PrivateKey, senderCfg, clk, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	tokenManager := chain.NewTokenManager(client, common.HexToAddress(cfg.Contracts.TokenManager))
	loans := chain.NewLoans(client, tokenManager, sender.Address())
	factory := chain.NewFactory(client, common.HexToAddress(cfg.Contracts.Factory))

	var unstakers []core.Unstaker
	if cfg.Unstake.StakedPositions {
		unstakers = append(unstakers, chain.NewStakedPositionsUnstaker(loans, sender))
	}
	for _, m := range cfg.Unstake.Methods {
		unstakers = append(unstakers, chain.NewMethodUnstaker(m.Name, m.Signature, sender))
	}

	var (
		priceCache oracle.Cache
		locker     engine.Locker
	)
	if cfg.Redis.Addr != "" {
		app.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := app.rdb.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, errors.Wrapf(err, "redis ping %s", cfg.Redis.Addr)
		}
		priceCache = oracle.NewRedisCache(app.rdb, cfg.Oracle.ServiceId)
		locker = engine.NewRedisLocker(app.rdb, clk)
	}

	gateways := make([]*oracle.Gateway, 0, len(cfg.Oracle.Gateways))
	for _, url := range cfg.Oracle.Gateways {
		gateways = append(gateways, oracle.NewGateway(url, cfg.Oracle.ServiceId, cfg.Oracle.Timeout.Duration))
	}
	prices := oracle.New(gateways, priceCache, oracle.Config{
		ServiceId:         cfg.Oracle.ServiceId,
		UniqueSigners:     cfg.Oracle.UniqueSigners,
		AuthorizedSigners: cfg.AuthorizedSigners(),
		MaxDelay:          cfg.Oracle.MaxDelay.Duration,
		CacheTTL:          cfg.Oracle.CacheTTL.Duration,
		UnsignedMetadata:  cfg.Oracle.UnsignedMetadata,
	}, clk, log)

	db, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.db = db

	var senders []notify.Sender
	if cfg.Notify.MixinKeystore != "" {
		mixinSender, err := notify.NewMixinSender(cfg.Notify.MixinKeystore, cfg.Notify.MixinRecipients)
		if err != nil {
			app.Close()
			return nil, err
		}
		senders = append(senders, mixinSender)
	}

	liqCfg := engine.DefaultConfig()
	liqCfg.Sizing = cfg.SizingParams()
	liqCfg.PinMaxBonus = cfg.PinnedMaxBonus()
	liqCfg.AllowanceMargin = cfg.Sizing.AllowanceMargin
	liqCfg.PreflightThreshold = cfg.Sizing.PreflightThreshold
	liqCfg.ConfirmationTimeout = cfg.Chain.ConfirmationTimeout.Duration
	liqCfg.PollInterval = cfg.Chain.PollInterval.Duration
	liqCfg.DropAfter = cfg.Chain.DropAfter.Duration

	app.liquidator = engine.New(engine.Dependencies{
		Loans:        loans,
		Tokens:       tokenManager,
		Oracle:       prices,
		Unstakers:    unstakers,
		Approver:     chain.NewApprover(sender),
		Flash:        chain.NewFlashLiquidator(sender, common.HexToAddress(cfg.Contracts.FlashLoan)),
		Watcher:      sender,
		Attempts:     store.NewAttemptStore(db),
		Notifier:     notify.NewNotifier(senders, cfg.Notify.Events, log),
		Metrics:      engine.NewMetrics(app.registry),
		Liquidator:   sender.Address(),
		TokenManager: tokenManager.Address(),
	}, liqCfg, clk, log)

	app.scanner = engine.NewScanner(factory, app.liquidator, locker, engine.ScannerConfig{
		Interval:        cfg.Scanner.Interval.Duration,
		Concurrency:     cfg.Scanner.Concurrency,
		HealthThreshold: cfg.Scanner.HealthThreshold,
		LockTTL:         cfg.Redis.LockTTL.Duration,
	}, clk, log)

	log.Info().
		Str("liquidator", sender.Address().Hex()).
		Int("unstakers", len(unstakers)).
		Bool("redis", app.rdb != nil).
		Msg("dependencies ready")
	return app, nil
}

// Run scans until ctx is done, serving metrics alongside when configured.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           a.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.log.Info().Str("addr", srv.Addr).Msg("serving metrics")
	}
	return a.scanner.Run(ctx)
}

func (a *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

func (a *App) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.client != nil {
		a.client.Close()
	}
}
