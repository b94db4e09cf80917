// @title         Hashwatch Ingest
// @version       0.1.0
// @description   Jetstream firehose consumer feeding the trend store

package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hashwatch/internal/adapters/ingest/jetstream"
	"hashwatch/internal/modkit"
	"hashwatch/internal/modkit/module"
	"hashwatch/internal/modkit/repokit"
	"hashwatch/internal/platform/config"
	"hashwatch/internal/platform/logger"
	phttp "hashwatch/internal/platform/net/http"
	"hashwatch/internal/platform/store"

	"hashwatch/internal/services/api"
	ingestmod "hashwatch/internal/services/ingest/module"
	sweepermod "hashwatch/internal/services/sweeper/module"
	trendsmod "hashwatch/internal/services/trends/module"
)

// lateStatus lets the API report connection state for a client that is
// constructed after the routes are mounted
type lateStatus struct {
	mu sync.Mutex
	c  *jetstream.Client
}

func (s *lateStatus) set(c *jetstream.Client) {
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
}

func (s *lateStatus) Snapshot() jetstream.Snapshot {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	if c == nil {
		return jetstream.Snapshot{State: jetstream.StateDisconnected.String()}
	}
	return c.Snapshot()
}

func main() {
	_ = godotenv.Load()

	root := config.New()
	apiCfg := root.Prefix("CORE_INGEST_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	rdsCfg := root.Prefix("SERVICE_REDIS_")

	l := logger.Get()

	backend := trendsmod.FromConfig(root).Backend

	st, err := store.Open(
		context.Background(),
		store.Config{
			AppName: "hashwatch-ingest",
			PG: store.PGConfig{
				Enabled:     backend == "pg",
				URL:         pgCfg.MayString("DBURL", ""),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),
			},
			CH: store.CHConfig{
				Enabled:    chCfg.MayBool("ENABLED", false),
				URL:        chCfg.MayString("DBURL", ""),
				ClientName: "hashwatch",
				ClientTag:  "ingest",
			},
			RDS: store.RedisConfig{
				Enabled: backend == "redis",
				Addr:    rdsCfg.MayString("ADDR", "localhost:6379"),
				DB:      rdsCfg.MayInt("DB", 0),
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// fail fast when a configured backend is unreachable
	repokit.MustGuard(context.Background(), st)

	// the ingest process serves the same API surface; set CORE_INGEST_API_ADDR
	// when running next to hashwatch-api
	srv := phttp.NewServer(apiCfg)

	status := &lateStatus{}
	mounted, err := api.Mount(
		srv.Router(),
		api.Options{
			ServiceName:    "hashwatch-ingest",
			Config:         apiCfg,
			Store:          st,
			Logger:         l,
			EnableSwagger:  apiCfg.MayBool("SWAGGER", false),
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
			Status:         status,
		},
	)
	if err != nil {
		l.Panic().Err(err).Msg("api.Mount failed")
	}

	// the trends module registered its ports during Mount
	tports, ok := module.PortsAs[trendsmod.Ports]("trends")
	if !ok {
		l.Panic().Msg("trends ports missing from registry")
	}

	deps := modkit.Deps{
		Log: *l,
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		RDS: st.RDS,
	}
	ing, err := ingestmod.New(deps, tports.Recorder)
	if err != nil {
		l.Panic().Err(err).Msg("ingest module construction failed")
	}
	status.set(module.MustPortsOf[ingestmod.Ports](ing).Client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// firehose + client side purge ticker
	ing.Start(ctx)
	defer ing.Stop()

	sw := module.MustPortsOf[sweepermod.Ports](mounted.Sweeper).Sweeper
	sw.Start(ctx)
	defer sw.Stop()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
