package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"hashwatch/internal/modkit"
	"hashwatch/internal/modkit/repokit"
	"hashwatch/internal/platform/config"
	"hashwatch/internal/platform/logger"
	"hashwatch/internal/platform/store"

	sweepermod "hashwatch/internal/services/sweeper/module"
	trendsmod "hashwatch/internal/services/trends/module"
)

// hashwatch-sweeper is the server side cleanup job: it purges expired trend
// counters on a cron schedule, independent of the ingest process's own ticker
func main() {
	_ = godotenv.Load()

	var (
		fOnce = flag.Bool("once", false, "run a single purge pass and exit")
	)
	flag.Parse()

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	rdsCfg := root.Prefix("SERVICE_REDIS_")

	l := logger.Get()

	backend := trendsmod.FromConfig(root).Backend

	st, err := store.Open(
		context.Background(),
		store.Config{
			AppName: "hashwatch-sweeper",
			PG: store.PGConfig{
				Enabled:     backend == "pg",
				URL:         pgCfg.MayString("DBURL", ""),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 2)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),
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

	deps := modkit.Deps{
		Log: *l,
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		RDS: st.RDS,
	}

	trends, err := trendsmod.New(deps)
	if err != nil {
		l.Panic().Err(err).Msg("trends module construction failed")
	}
	tports := trends.Ports().(trendsmod.Ports)

	purge := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := tports.Store.PurgeExpired(ctx)
		if err != nil {
			l.Error().Err(err).Msg("purge pass failed")
			return
		}
		l.Info().Int64("removed", removed).Msg("purge pass done")
	}

	if *fOnce {
		purge()
		return
	}

	spec := sweepermod.FromConfig(root).CronSpec

	c := cron.New()
	if _, err := c.AddFunc(spec, purge); err != nil {
		l.Panic().Err(err).Str("spec", spec).Msg("bad cron spec")
	}
	c.Start()
	l.Info().Str("spec", spec).Msg("sweeper scheduled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	<-c.Stop().Done()
}
