package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"grantflow.org/internal/audit"
	"grantflow.org/internal/auth"
	"grantflow.org/internal/config"
	"grantflow.org/internal/controlplane"
	"grantflow.org/internal/events"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/httpapi"
	"grantflow.org/internal/narrative"
	"grantflow.org/internal/obs"
	"grantflow.org/internal/orchestrator"
	"grantflow.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("GRANTFLOW_CONFIG"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := obs.NewLogger(obs.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer obs.SetLogger(logger)()
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	matrix := auth.DefaultMatrix()
	if cfg.Auth.PermissionMatrixFile != "" {
		if matrix, err = auth.LoadMatrixFile(cfg.Auth.PermissionMatrixFile); err != nil {
			logger.Fatal("load permission matrix", zap.Error(err))
		}
	}

	var (
		store      grants.Store
		auditStore audit.Store
		reports    orchestrator.ReportStore
		ready      httpapi.ReadyProbe
	)
	if cfg.Database.DSN != "" {
		db, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		store, auditStore, reports, ready = db, db, db, httpapi.ReadyProbe{DB: db}
	} else {
		logger.Warn("database.dsn not set, using in-memory storage")
		store, auditStore, reports = grants.NewInMemory(), audit.NewMemoryStore(), orchestrator.NewMemoryReports()
	}

	narrator, err := narrative.New(cfg.Narrative)
	if err != nil {
		logger.Fatal("init narrative generator", zap.Error(err))
	}

	var tokens *auth.TokenIssuer
	if cfg.Auth.Secret != "" {
		if tokens, err = auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.Issuer); err != nil {
			logger.Fatal("init token issuer", zap.Error(err))
		}
	} else {
		logger.Warn("auth.secret not set, API requests are unauthenticated and will be rejected")
	}

	broker := events.NewBroker()
	svc := controlplane.New(store, audit.NewTrail(auditStore), controlplane.Options{
		Matrix:           matrix,
		Reports:          reports,
		Narrator:         narrator,
		MinDrafts:        cfg.Orchestrator.MinDrafts,
		NarrativeTimeout: cfg.Orchestrator.NarrativeTimeout,
		Broker:           broker,
	})

	api := httpapi.New(svc, httpapi.Options{
		Version:       version,
		Ready:         ready,
		Broker:        broker,
		Tokens:        tokens,
		DevTokens:     cfg.Auth.AllowDevTokens,
		TokenTTL:      cfg.Auth.TokenTTL,
		RateBurst:     cfg.Server.RateBurst,
		RatePerSecond: cfg.Server.RatePerSecond,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	grpcServer := grpc.NewServer()
	httpapi.NewGRPCServer(ready).Register(grpcServer)

	logger.Info("starting grantflow-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("grpc_addr", cfg.Server.GRPCAddr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http listen", zap.Error(err))
		}
	}()
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("grpc serve", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
