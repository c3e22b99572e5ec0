package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/umarovb/agromap-core/internal/api"
	"github.com/umarovb/agromap-core/internal/cache/cellindex"
	"github.com/umarovb/agromap-core/internal/cache/redisstore"
	"github.com/umarovb/agromap-core/internal/core/config"
	"github.com/umarovb/agromap-core/internal/core/httpclient"
	"github.com/umarovb/agromap-core/internal/core/observability"
	"github.com/umarovb/agromap-core/internal/core/server"
	"github.com/umarovb/agromap-core/internal/fetcher"
	"github.com/umarovb/agromap-core/internal/invalidation/kafkaconsumer"
	"github.com/umarovb/agromap-core/internal/logger"
	h3mapper "github.com/umarovb/agromap-core/internal/mapper/h3"
	"github.com/umarovb/agromap-core/internal/metrics"
	"github.com/umarovb/agromap-core/internal/orgtree"
	"github.com/umarovb/agromap-core/internal/source"
	"github.com/umarovb/agromap-core/internal/store"
	"github.com/umarovb/agromap-core/internal/typereg"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

type readiness struct {
	deps map[string]string
}

func (r readiness) Readiness() (bool, map[string]string) {
	ready := true
	for _, v := range r.deps {
		if v != "ok" && v != "disabled" {
			ready = false
		}
	}
	return ready, r.deps
}

func run() int {
	sourceFlag := flag.String("source", "", "facility source: upstream or postgres")
	flag.Parse()

	cfg := config.FromEnv()
	if *sourceFlag != "" {
		cfg.Source = strings.TrimSpace(*sourceFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Service:   "agromap-core",
		Component: "server",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)

	appLog.Info("starting agromap-core",
		"addr", cfg.Addr,
		"version", Version,
		"source", cfg.Source)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Addr:    cfg.MetricsAddr,
		Path:    cfg.MetricsPath,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), cfg.MetricsEnabled)
	go func() {
		if err := p.Serve(ctx); err != nil {
			appLog.Error("metrics server exited", "err", err)
		}
	}()

	deps := map[string]string{}

	reg := typereg.Default()
	if cfg.TypesFile != "" {
		f, err := os.Open(cfg.TypesFile)
		if err != nil {
			appLog.Error("open types file", "path", cfg.TypesFile, "err", err)
			return 1
		}
		reg, err = typereg.Load(f)
		_ = f.Close()
		if err != nil {
			appLog.Error("load types file", "path", cfg.TypesFile, "err", err)
			return 1
		}
	}

	var orgs []*orgtree.Node
	if cfg.OrgsFile != "" {
		f, err := os.Open(cfg.OrgsFile)
		if err != nil {
			appLog.Error("open orgs file", "path", cfg.OrgsFile, "err", err)
			return 1
		}
		orgs, err = orgtree.Load(f)
		_ = f.Close()
		if err != nil {
			appLog.Error("load orgs file", "path", cfg.OrgsFile, "err", err)
			return 1
		}
	}

	mapper, err := h3mapper.New(cfg.H3Res)
	if err != nil {
		appLog.Error("h3 mapper", "err", err)
		return 1
	}

	var (
		baseSrc  fetcher.Source
		facStore api.FacilityStore
	)
	switch cfg.Source {
	case "postgres":
		db, err := store.New(ctx, cfg.PostgresURL, zl)
		if err != nil {
			appLog.Error("postgres store", "err", err)
			deps["postgres"] = err.Error()
			return 1
		}
		defer db.Close()
		deps["postgres"] = "ok"
		baseSrc, facStore = db, db
	default:
		up, err := source.NewUpstream(appLog, httpclient.NewOutbound(), cfg.FacilityAPIURL, cfg.FacilityAPIKey)
		if err != nil {
			appLog.Error("upstream client", "err", err)
			return 1
		}
		deps["upstream"] = "ok"
		baseSrc, facStore = up, up
	}

	// the cache is best effort; without redis every query goes upstream
	src := baseSrc
	var rcli *redisstore.Client
	if cfg.RedisAddr != "" {
		rcli, err = redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Warn("redis unavailable, serving uncached", "err", err)
			deps["redis"] = err.Error()
		} else {
			defer func() { _ = rcli.Close() }()
			deps["redis"] = "ok"
			src = source.NewCached(baseSrc, rcli, cellindex.NewRedisIndex(rcli), mapper, source.CacheOptions{
				TTLDefault:   cfg.CacheTTLDefault,
				TTLOverrides: cfg.CacheTTLOvr,
				OpTimeout:    cfg.CacheOpTimeout,
				Logger:       zl,
			})
		}
	} else {
		deps["redis"] = "disabled"
	}

	if cfg.Invalidation.Enabled {
		if rcli == nil {
			appLog.Warn("invalidation enabled but redis is not, skipping consumer")
		} else {
			kc := kafkaconsumer.New(
				kafkaconsumer.DefaultConfig(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID),
				zl, rcli, cellindex.NewRedisIndex(rcli), mapper, nil)
			go func() {
				if err := kc.Start(ctx); err != nil {
					appLog.Error("kafka consumer exited", "err", err)
				}
			}()
			deps["kafka"] = "ok"
		}
	} else {
		deps["kafka"] = "disabled"
	}

	h := api.NewHandler(src, facStore, orgs, reg, zl)

	if err := server.Run(ctx, cfg, appLog, h, server.Options{
		PromHandler: nil, // metrics live on their own listener
		Readiness:   readiness{deps: deps},
	}); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
