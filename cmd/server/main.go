package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"

	"github.com/tariffdesk/jobengine/internal/backoff"
	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/job"
	applog "github.com/tariffdesk/jobengine/internal/log"
	"github.com/tariffdesk/jobengine/internal/notify"
	"github.com/tariffdesk/jobengine/internal/progress"
	"github.com/tariffdesk/jobengine/internal/registry"
	"github.com/tariffdesk/jobengine/internal/retry"
	"github.com/tariffdesk/jobengine/internal/scheduler"
	"github.com/tariffdesk/jobengine/internal/storage/postgres"
	"github.com/tariffdesk/jobengine/internal/worker"
	"github.com/tariffdesk/jobengine/middleware"
)

func main() {
	log.Println("Starting job engine...")

	ctx := context.Background()

	engineCfg, err := config.LoadEngineConfigFromEnv(ctx)
	if err != nil {
		log.Fatal("Failed to load engine config:", err)
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		log.Fatal("Failed to load db config:", err)
	}

	db, err := postgres.ConnectDB(dbCfg)
	if err != nil {
		log.Fatal("Connection failed:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get underlying *sql.DB:", err)
	}
	defer sqlDB.Close()

	if err := postgres.Migrate(sqlDB); err != nil {
		log.Fatal("Migration failed:", err)
	}
	log.Println("SUCCESS! Database connected and migrated")

	logger := applog.Logger()

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)
	defer pubSub.Close()

	emitter := notify.NewEmitter(pubSub, logger)

	reg := registry.NewRegistry()
	worker.RegisterBuiltinHandlers(reg)

	repo := postgres.NewJobRepository(db)
	tracker := progress.NewTracker(repo)
	retries := retry.NewManager(backoff.NewExponentialWithJitter(engineCfg.BackoffInitial, engineCfg.BackoffMax))
	executor := worker.NewExecutor(repo, reg, tracker, retries, emitter, engineCfg.StallThreshold, logger)

	sched := scheduler.NewScheduler(repo, executor, emitter, pubSub,
		engineCfg.Capacity, engineCfg.TickInterval, logger)
	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}

	service := job.NewJobService(repo, reg, emitter, engineCfg.Capacity, engineCfg.MaxRetries)
	handler := job.NewJobHandler(service)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.ErrorHandler())
	v1 := router.Group("/api/v1", middleware.TenantRequired())
	handler.RegisterRoutes(v1)

	server := &http.Server{
		Addr:    engineCfg.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed:", err)
		}
	}()

	log.Printf("Engine active on %s (capacity %d). Press Ctrl+C to stop.",
		engineCfg.ListenAddr, engineCfg.Capacity)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("HTTP shutdown error:", err)
	}

	sched.Stop()
	log.Println("Shutdown complete.")
}
