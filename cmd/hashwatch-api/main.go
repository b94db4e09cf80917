// @title         Hashwatch API
// @version       0.1.0
// @description   Read only endpoints for live hashtag trends per region

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hashwatch/internal/modkit/repokit"
	"hashwatch/internal/platform/config"
	"hashwatch/internal/platform/logger"
	phttp "hashwatch/internal/platform/net/http"
	"hashwatch/internal/platform/store"

	"hashwatch/internal/services/api"
	trendsmod "hashwatch/internal/services/trends/module"
)

func main() {
	// optional .env for local runs; real deployments set the environment
	_ = godotenv.Load()

	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")      // pgCfg lives under SERVICE_PGSQL_*
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_") // chCfg lives under SERVICE_CLICKHOUSE_*
	rdsCfg := root.Prefix("SERVICE_REDIS_")     // rdsCfg lives under SERVICE_REDIS_*

	// bring up logging early
	l := logger.Get()

	// only the backends the configured trend store actually needs are opened
	backend := trendsmod.FromConfig(root).Backend

	st, err := store.Open(
		context.Background(),
		store.Config{
			AppName: "hashwatch-api",
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
				ClientTag:  "api",
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

	// http server (reads CORE_API_ADDR)
	srv := phttp.NewServer(apiCfg)

	// mount our API; this process serves queries only, the ingest binary
	// owns the firehose client so Status stays nil here
	if _, err := api.Mount(
		srv.Router(),
		api.Options{
			ServiceName:    "hashwatch-api",
			Config:         apiCfg,
			Store:          st,
			Logger:         l,
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
		},
	); err != nil {
		l.Panic().Err(err).Msg("api.Mount failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	// run
	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
