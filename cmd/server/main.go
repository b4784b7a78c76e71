package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"taskdesk/internal/audit"
	"taskdesk/internal/auth"
	authHandler "taskdesk/internal/auth/handler"
	userStore "taskdesk/internal/auth/store/user"
	"taskdesk/internal/guard"
	"taskdesk/internal/notify"
	notifyHandler "taskdesk/internal/notify/handler"
	"taskdesk/internal/platform/config"
	"taskdesk/internal/platform/httpserver"
	"taskdesk/internal/platform/logger"
	"taskdesk/internal/platform/metrics"
	"taskdesk/internal/ratelimit"
	"taskdesk/internal/security/attempt"
	"taskdesk/internal/security/workers/sweep"
	"taskdesk/internal/task"
	taskHandler "taskdesk/internal/task/handler"
	httptransport "taskdesk/internal/transport/http"
	"taskdesk/internal/upload"
	uploadHandler "taskdesk/internal/upload/handler"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.Load(".env")
	log := logger.New()

	log.Info("initializing taskdesk",
		"addr", cfg.Addr,
		"upload_dir", cfg.UploadDir,
	)

	if cfg.JWTSigningKey == config.DevSigningKey {
		log.Warn("using the development JWT signing key; set TASKDESK_JWT_SIGNING_KEY in production")
	}

	m := metrics.New()
	recorder := audit.NewRecorder(log)

	// Defense state shared between the guard pipeline and the handlers.
	def := cfg.Defense
	generalLimiter := ratelimit.New(ratelimit.Config{
		SoftCap:      def.GeneralSoftCap,
		HardCap:      def.GeneralHardCap,
		Window:       def.GeneralWindow,
		SoftCapDelay: def.SoftCapDelay,
		TrustedCIDRs: def.TrustedCIDRs,
	})
	authLimiter := ratelimit.New(ratelimit.Config{
		HardCap: def.AuthHardCap,
		Window:  def.AuthWindow,
	})
	loginAttempts := attempt.New(attempt.Config{
		MaxAttempts: def.LoginMaxAttempts,
		Window:      def.LoginWindow,
	})

	tokens := auth.NewTokenService(cfg.JWTSigningKey, cfg.Issuer, cfg.TokenTTL)
	authSvc, err := auth.New(userStore.NewInMemoryUserStore(), tokens, auth.WithLogger(log))
	if err != nil {
		log.Error("failed to build auth service", "error", err)
		os.Exit(1)
	}

	hub := notify.NewHub(notify.Config{
		MaxPerUser:    def.SocketMaxPerUser,
		MaxAttempts:   def.SocketMaxAttempts,
		AttemptWindow: def.SocketAttemptWindow,
	}, notify.WithLogger(log), notify.WithMetrics(m), notify.WithAuditRecorder(recorder))

	taskSvc := task.NewService(task.NewInMemoryTaskStore(), task.WithLogger(log))

	storage, err := upload.NewDiskStorage(cfg.UploadDir)
	if err != nil {
		log.Error("failed to prepare upload storage", "error", err, "dir", cfg.UploadDir)
		os.Exit(1)
	}
	uploadSvc, err := upload.New(upload.NewGate(def.MaxUploadBytes), storage,
		upload.WithLogger(log), upload.WithMetrics(m))
	if err != nil {
		log.Error("failed to build upload service", "error", err)
		os.Exit(1)
	}

	pipelines := httptransport.BuildPipelines(httptransport.PipelineDeps{
		GeneralLimiter: guard.NewRateLimit(generalLimiter, ratelimit.KeyPrefixIP, recorder),
		AuthLimiter:    guard.NewRateLimit(authLimiter, ratelimit.KeyPrefixAuth, recorder),
		BruteForce:     guard.NewBruteForce(loginAttempts, "login", recorder, m),
		PatternScan:    guard.NewPatternScan(recorder, m),
		Sanitize:       guard.NewSanitize(),
		Authenticate:   guard.NewAuthenticate(tokens, recorder),
		Recorder:       recorder,
		Metrics:        m,
		Logger:         log,
	})

	router := httptransport.NewRouter(httptransport.Handlers{
		Auth:   authHandler.New(authSvc, loginAttempts, authLimiter, int(cfg.TokenTTL.Seconds()), log),
		Task:   taskHandler.New(taskSvc, hub, log),
		Upload: uploadHandler.New(uploadSvc, taskSvc, def.MaxUploadBytes, log),
		Notify: notifyHandler.New(hub, log),
	}, pipelines, httptransport.RouterConfig{
		FrontendOrigin: cfg.FrontendOrigin,
	}, log)

	sweeper := sweep.New([]sweep.Sweepable{
		generalLimiter,
		authLimiter,
		loginAttempts,
		sweep.SweepFunc(hub.SweepAttempts),
	}, sweep.WithLogger(log), sweep.WithMetrics(m), sweep.WithInterval(def.SweepInterval))

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := sweeper.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
