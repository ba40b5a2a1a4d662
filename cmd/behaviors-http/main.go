package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/admission"
	"github.com/nanjiek/pixiu-behaviors/internal/api"
	"github.com/nanjiek/pixiu-behaviors/internal/config"
	"github.com/nanjiek/pixiu-behaviors/internal/core"
	"github.com/nanjiek/pixiu-behaviors/internal/identity"
	"github.com/nanjiek/pixiu-behaviors/internal/logging"
	"github.com/nanjiek/pixiu-behaviors/internal/repo"
	"github.com/nanjiek/pixiu-behaviors/internal/rules"
	"github.com/nanjiek/pixiu-behaviors/internal/rules/source"
	"github.com/nanjiek/pixiu-behaviors/internal/store"
)

func main() {
	// 解析命令行参数
	confPath := flag.String("c", "configs/behaviors.yaml", "path to config file")
	atomic := flag.Bool("atomic", false, "run each save in one database transaction")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 准入缓存：Redis 或进程内存
	var cache repo.Repo
	var rdb *repo.RedisRepo
	switch strings.ToLower(cfg.Gate.Cache) {
	case "memory":
		cache = repo.NewMemory(cfg.Redis.Prefix)
		logger.Warn("admission stamps kept in process memory; not shared between instances")
	default:
		rdb, err = repo.NewRedis(cfg, logger)
		if err != nil {
			fatal(logger, "failed to connect redis", err)
		}
		cache = rdb
	}
	defer cache.Close()

	gate, err := admission.NewGate(cache, cfg.Limits,
		admission.WithKeyFunc(cache.KeyAdmission),
		admission.WithStrict(cfg.Gate.Strict),
		admission.WithFailPolicy(cfg.Gate.FailPolicy),
		admission.WithLogger(logger),
	)
	if err != nil {
		fatal(logger, "invalid admission limits", err)
	}

	// 规则热更新
	for _, src := range limitSources(cfg, *confPath, rdb, logger) {
		poller := rules.NewPoller(src, gate, rules.PollerConfig{
			Interval: time.Duration(cfg.Rules.PollIntervalMs) * time.Millisecond,
			Logger:   logger,
		})
		if _, err := poller.SyncOnce(rootCtx); err != nil {
			logger.Warn("initial limits pull failed, using configured limits", "err", err)
		}
		go poller.Start(rootCtx)
	}

	// 关系存储
	db, err := store.Open(cfg.Database)
	if err != nil {
		fatal(logger, "failed to open database", err)
	}
	if err := store.Migrate(db); err != nil {
		fatal(logger, "failed to migrate database", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	lifecycle := core.NewLifecycle(store.NewLinkStore(db), cfg.LinkSets,
		core.WithAtomic(*atomic),
		core.WithLogger(logger),
	)

	httpServer := api.NewServer(cfg.Server, gate, identity.NewResolverFromConfig(cfg.Identity), lifecycle, logger)

	r := mux.NewRouter()
	httpServer.RegisterRoutes(r)

	// 原生 http.Server，方便优雅退出
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
	}

	go func() {
		logger.Info("server is running", "addr", cfg.Server.HTTPAddr, "pid", os.Getpid(), "link_sets", lifecycle.Sets())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server failed", err)
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")
	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "err", err)
		return
	}
	logger.Info("server exited properly")
}

func limitSources(cfg *config.Config, confPath string, rdb *repo.RedisRepo, logger *slog.Logger) []source.LimitsSource {
	var out []source.LimitsSource
	if cfg.Rules.WatchFile {
		out = append(out, source.NewFileSource(confPath))
	}
	if cfg.Rules.Nacos.Enabled() {
		out = append(out, source.NewNacosSource(cfg.Rules.Nacos, logger))
	}
	if cfg.Rules.RedisKey != "" {
		if rdb == nil {
			logger.Warn("rules.redisKey ignored: gate.cache is not redis")
		} else {
			out = append(out, source.NewRedisSource(rdb.Cli, fmt.Sprintf("%s:%s", rdb.Prefix, cfg.Rules.RedisKey)))
		}
	}
	if len(out) > 1 {
		logger.Warn("several limit sources enabled; the last one to change wins", "count", len(out))
	}
	return out
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
