package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsewatch/sentinel/internal/api"
	"github.com/pulsewatch/sentinel/internal/config"
	"github.com/pulsewatch/sentinel/internal/db"
	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/events"
	"github.com/pulsewatch/sentinel/internal/incident"
	"github.com/pulsewatch/sentinel/internal/logging"
	"github.com/pulsewatch/sentinel/internal/notifications"
	"github.com/pulsewatch/sentinel/internal/probe"
	"github.com/pulsewatch/sentinel/internal/scheduler"
	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/verification"
)

func main() {
	logger := logging.New("sentineld")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	store, err := db.NewStore(cfg.DB)
	if err != nil {
		logger.Fatalf("init database: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := notifications.NewDispatcher(store, cfg.Slack)
	dispatcher.Start(ctx)

	verifier := verification.NewVerifier(verification.LocalFallbackProvider{Prober: localReprobe})

	eng := engine.New(
		state.NewStore(),
		verifier,
		incident.NewManager(db.IncidentAdapter{Store: store}),
		events.NewPublisher(),
		dispatcher,
		logger,
	)

	sched := scheduler.New(store, eng, cfg.Scheduler)
	sched.Start()
	defer sched.Stop()

	router := api.NewRouter(store, eng, sched, &cfg)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Println("exited")
}

// localReprobe re-checks a target from the controller's own network,
// standing in as the sole "local" region until an operator wires a
// multi-region verification.Provider.
func localReprobe(ctx context.Context, req verification.Request) (verification.RegionResult, error) {
	var driver interface {
		Probe(ctx context.Context, target string, timeout time.Duration) probe.Result
	}
	switch req.Protocol {
	case probe.ProtocolTCP:
		driver = probe.NewTCPDriver()
	case probe.ProtocolSSL:
		driver = &probe.TCPDriver{UseTLS: true}
	default:
		driver = probe.NewHTTPDriver()
	}

	result := driver.Probe(ctx, req.Host, 10*time.Second)
	return verification.RegionResult{
		Region:         "local",
		IsUp:           result.IsUp,
		ResponseTimeMs: result.ResponseTimeMs,
		ErrorKind:      result.ErrorKind,
		CheckedAt:      time.Now(),
	}, nil
}
