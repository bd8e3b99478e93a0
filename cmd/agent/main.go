package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telecrm/internal/audit"
	"telecrm/internal/backend"
	"telecrm/internal/bus"
	"telecrm/internal/calllog"
	"telecrm/internal/callrecord"
	"telecrm/internal/capture"
	"telecrm/internal/config"
	"telecrm/internal/device"
	"telecrm/internal/httpapi"
	"telecrm/internal/recording"
	"telecrm/internal/reporting"
	"telecrm/internal/syncq"
	"telecrm/pkg/logger"
	"telecrm/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

const (
	syncLeaseKey = "telecrm:syncq:lease"
	syncLeaseTTL = 30 * time.Second
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	b := bus.New()
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)

	trail := audit.NewService(audit.NewMemoryRepo(), log)
	trail.Follow(rootCtx, b)
	defer trail.Stop()

	// Device identity: register once, then heartbeat on schedule.
	deviceMgr := device.NewManager(device.NewPostgresRepo(db), client, cfg.Device.Name, log)
	if err := deviceMgr.EnsureRegistered(rootCtx); err != nil {
		// Not fatal: capture keeps working locally; outbound sync drops
		// tasks as permanent failures until registration succeeds.
		log.Warn("device registration failed", "err", err)
	}
	if err := deviceMgr.StartHeartbeat(cfg.Device.HeartbeatSchedule, client); err != nil {
		log.Error("heartbeat schedule invalid", "schedule", cfg.Device.HeartbeatSchedule, "err", err)
		os.Exit(1)
	}
	defer deviceMgr.StopHeartbeat()

	// Capture pipeline.
	store := callrecord.NewStore(callrecord.NewPostgresRepo(db), b)
	callLogFeed := calllog.NewMemoryLog()
	mediaIndex := recording.NewMemoryIndex()
	queue := syncq.NewRedisQueue(rdb)

	tracker := capture.NewTracker(
		store,
		calllog.NewCorrelator(callLogFeed, log),
		recording.NewLocator(mediaIndex, log),
		queue,
		deviceMgr,
		b,
		log,
	)
	tracker.Start(rootCtx)
	defer tracker.Stop()

	// Sync worker, guarded by a lease so a second agent instance on the
	// same Redis never drains the queue concurrently.
	leaseOwner := uuid.NewString()
	if ok := startSyncWorker(rootCtx, rdb, leaseOwner, queue, client, deviceMgr, b, cfg, log); ok {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = utils.ReleaseLease(releaseCtx, rdb, syncLeaseKey, leaseOwner)
		}()
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{
		Tracker: tracker,
		CallLog: callLogFeed,
		Media:   mediaIndex,
		Bus:     b,
		Audit:   trail,
		Reports: reporting.NewService(store),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("agent listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// startSyncWorker acquires the drain lease and, if held, runs the sync
// worker plus a renewal loop. Returns whether the lease was acquired.
func startSyncWorker(
	ctx context.Context,
	rdb *redis.Client,
	owner string,
	queue syncq.Queue,
	client *backend.Client,
	identity device.Provider,
	b *bus.Bus,
	cfg config.Config,
	log *slog.Logger,
) bool {
	ok, err := utils.AcquireLease(ctx, rdb, syncLeaseKey, owner, syncLeaseTTL)
	if err != nil {
		log.Error("sync lease acquire failed", "err", err)
		return false
	}
	if !ok {
		log.Warn("sync lease held elsewhere, outbound sync disabled on this instance")
		return false
	}

	policy := syncq.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Sync.MaxAttempts

	w := syncq.NewWorker(queue, client, policy, b, log)
	w.SetPollInterval(cfg.Sync.PollInterval)
	backend.NewSyncHandlers(client, identity, backend.FileSource{}, log).RegisterAll(w)

	// The worker stops when the lease is lost, not just on shutdown.
	workerCtx, cancel := context.WithCancel(ctx)
	go w.Run(workerCtx)
	go func() {
		defer cancel()
		t := time.NewTicker(syncLeaseTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				held, err := utils.RenewLease(ctx, rdb, syncLeaseKey, owner, syncLeaseTTL)
				if err != nil || !held {
					log.Error("sync lease lost", "err", err)
					return
				}
			}
		}
	}()
	return true
}
