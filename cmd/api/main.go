package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Djamsy/veille-uptade-sub000/internal/application"
	appsentiment "github.com/Djamsy/veille-uptade-sub000/internal/application/sentiment"
	"github.com/Djamsy/veille-uptade-sub000/internal/config"
	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
	aiopenai "github.com/Djamsy/veille-uptade-sub000/internal/infra/ai/openai"
	"github.com/Djamsy/veille-uptade-sub000/internal/infra/db/memory"
	mysqlp "github.com/Djamsy/veille-uptade-sub000/internal/infra/db/mysql"
	postgresp "github.com/Djamsy/veille-uptade-sub000/internal/infra/db/postgres"
	"github.com/Djamsy/veille-uptade-sub000/internal/infra/httpserver"
	minioStore "github.com/Djamsy/veille-uptade-sub000/internal/infra/storage"
	"github.com/Djamsy/veille-uptade-sub000/internal/middleware"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	var (
		cache    domain.Cache
		queue    domain.Queue
		db       *sql.DB
		checkers = map[string]middleware.HealthChecker{}
	)

	switch cfg.Database.Driver {
	case "mysql", "":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		cache = mysqlp.NewCacheRepository(db)
		queue = mysqlp.NewQueueRepository(db)
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		cache = postgresp.NewCacheRepository(db)
		queue = postgresp.NewQueueRepository(db)
	case "memory":
		// dev mode, nothing survives a restart
		cache = memory.NewCache()
		queue = memory.NewQueue()
	default:
		log.Fatalf("unknown database driver: %s", cfg.Database.Driver)
	}
	if db != nil {
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	var archive domain.ArchiveStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
		checkers["minio"] = &middleware.PingHealthChecker{Target: store}
	}

	analyzer := aiopenai.NewClient(cfg.Analysis.APIKey, cfg.Analysis.Model)
	clock := application.SystemClock{}

	svc := &appsentiment.Service{
		Cache:       cache,
		Queue:       queue,
		Analyzer:    analyzer,
		Clock:       clock,
		MaxAge:      time.Duration(cfg.Analysis.CacheTTLHours) * time.Hour,
		SyncTimeout: time.Duration(cfg.Analysis.ProviderTimeoutSecs) * time.Second,
	}

	worker := &appsentiment.Worker{
		Queue:           queue,
		Cache:           cache,
		Analyzer:        analyzer,
		Archive:         archive,
		Clock:           clock,
		PollInterval:    time.Duration(cfg.Analysis.PollIntervalSecs) * time.Second,
		ProviderTimeout: time.Duration(cfg.Analysis.ProviderTimeoutSecs) * time.Second,
		Concurrency:     cfg.Analysis.Workers,
		Retention:       time.Duration(cfg.Analysis.RetentionDays) * 24 * time.Hour,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()

	var ratelimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		ratelimit = middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}

	handler := httpserver.NewRouter(svc, httpserver.Options{
		MaxTextLength:  cfg.Analysis.MaxTextLength,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Checkers:       checkers,
		RateLimit:      ratelimit,
		APIKeys:        cfg.Auth.APIKeys,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // sync analyses block on the provider
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Println("worker did not stop in time")
	}
}
