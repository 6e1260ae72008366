package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mrwolf/her-server/internal/api"
	"github.com/mrwolf/her-server/internal/cache"
	"github.com/mrwolf/her-server/internal/catalog"
	"github.com/mrwolf/her-server/internal/config"
	"github.com/mrwolf/her-server/internal/counselor"
	"github.com/mrwolf/her-server/internal/db"
	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/llm"
	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/scheduler"
	"github.com/mrwolf/her-server/internal/selector"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("loading config: " + err.Error())
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting her-server", "version", api.Version)

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("creating data directory", "error", err)
		}
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("opening database", "error", err)
	}

	var askedCache history.AskedCache
	var redisCache *cache.AskedCache
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err = cache.Dial(ctx, cfg.RedisAddr, cfg.AskedCacheTTL)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, asked records will not be cached", "addr", cfg.RedisAddr, "error", err)
		} else {
			askedCache = redisCache
			log.Info("asked-record cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.AskedCacheTTL.String())
		}
	}
	svc := history.NewService(database, askedCache, log)

	llmClient := llm.NewClient(cfg.OllamaURL, cfg.OllamaModel)
	c := counselor.New(llmClient)

	cat := catalog.Default()
	sel := selector.New(selector.Options{
		Catalog: cat,
		History: svc,
		Asked:   svc,
		Providers: []selector.Provider{
			&selector.RemoteProvider{Label: "llm", Client: c, Timeout: cfg.GenerationTimeout},
			&selector.CatalogProvider{Catalog: cat},
		},
		Log: log,
	})

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		DB:        database,
		History:   svc,
		Selector:  sel,
		Counselor: c,
		LLM:       llmClient,
		Log:       log,
	})

	// The probe runs once on start, so the model's availability is known
	// before the first request.
	sched, err := scheduler.New(llmClient, c, database, scheduler.Config{
		Timezone: cfg.Timezone,
		Log:      log,
	})
	if err != nil {
		log.Fatal("creating scheduler", "error", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatal("starting scheduler", "error", err)
	}

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("listening", "addr", addr, "ollama", cfg.OllamaURL, "model", cfg.OllamaModel)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", "error", err)
		}
	}()

	<-done
	log.Info("shutting down gracefully")

	// Give ongoing requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("http server shutdown", "error", err)
	}

	if err := sched.Stop(); err != nil {
		log.Error("scheduler shutdown", "error", err)
	}

	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Error("closing redis", "error", err)
		}
	}

	if err := database.Close(); err != nil {
		log.Error("closing database", "error", err)
	}

	log.Info("shutdown complete")
}
