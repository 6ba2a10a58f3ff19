// Command invoiced serves invoice extraction over gRPC and HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-trust/internal/app"
	"github.com/joseph-ayodele/invoice-trust/internal/async"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/repository"
	"github.com/joseph-ayodele/invoice-trust/internal/rules"
	"github.com/joseph-ayodele/invoice-trust/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("invoiced.exit", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := common.LoadConfig()
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rs, err := rules.Load(cfg.Engine.RulesPath)
	if err != nil {
		return err
	}
	eng, err := app.Build(ctx, cfg, rs, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Optional record store
	var records repository.RecordRepository
	if cfg.Database.DSN != "" {
		db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Ping(ctx, cfg.Database.DialTimeout); err != nil {
			return err
		}
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("invoiced.db.ready", "dialect", db.Dialect())
		records = db
	}

	// Background queue for POST /v1/jobs; handle is bound after the service exists.
	var svc *server.ExtractionService
	jobs := async.NewProcessorQueue(func(ctx context.Context, doc extract.Document) (async.Output, error) {
		return svc.Handle(ctx, doc)
	}, logger,
		async.WithWorkers(cfg.Engine.Workers),
		async.WithProcessTimeout(cfg.Engine.DocumentTimeout),
	)
	svc = server.NewExtractionService(eng.Processor, eng.Metrics, records, logger, server.WithJobQueue(jobs))

	grpcServer := server.NewGRPC(svc)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: server.NewRouter(svc, server.HTTPConfig{
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			RequestTimeout: cfg.Server.RequestTimeout,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("invoiced.grpc.serving", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("invoiced.http.serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("invoiced.shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		err := httpServer.Shutdown(sctx)
		jobs.Shutdown(sctx)
		return err
	})
	return g.Wait()
}
