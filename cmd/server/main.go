// Command diaspora-server runs a pod: the People gRPC service, the remote
// person cache and the admin subcommands operating on the same database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/gleenn/diaspora/internal/api/peoplev1"
	"github.com/gleenn/diaspora/internal/config"
	"github.com/gleenn/diaspora/internal/federation"
	"github.com/gleenn/diaspora/internal/holddown"
	"github.com/gleenn/diaspora/internal/metrics"
	"github.com/gleenn/diaspora/internal/migrate"
	"github.com/gleenn/diaspora/internal/repository"
	"github.com/gleenn/diaspora/internal/repository/postgres"
	"github.com/gleenn/diaspora/internal/search"
	grpcserver "github.com/gleenn/diaspora/internal/server/grpc"
	"github.com/gleenn/diaspora/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and either executes one admin
// subcommand or starts the gRPC server.
func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := wire(cfg, db, m, logger)

	if len(cfg.Args) > 0 {
		if err := runAdmin(ctx, a, cfg.Args[0], cfg.Args[1:], os.Stdout); err != nil {
			if errors.Is(err, errUsage) {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			logger.Error("admin", zap.String("cmd", cfg.Args[0]), zap.Error(err))
			os.Exit(1)
		}
		return
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("pod", cfg.PodHost),
	)
	if err := serve(ctx, cfg, a, reg, m, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// app bundles the services shared by the server and the admin subcommands.
type app struct {
	people    service.PeopleService
	persons   repository.PersonRepository
	accounts  service.AccountService
	lifecycle service.LifecycleService
	content   service.ContentService
	search    grpcserver.Searcher
	signKey   []byte
}

func wire(cfg config.Config, db *postgres.DB, m *metrics.Metrics, logger *zap.Logger) *app {
	persons := postgres.NewPersonRepo(db)
	users := postgres.NewUserRepo(db)

	policy := federation.DefaultPolicy()
	policy.DenyHosts = cfg.DenyHosts
	fopts := []federation.Option{federation.WithPolicy(policy), federation.WithLogger(logger)}
	if cfg.FederationInsecure {
		fopts = append(fopts, federation.WithInsecure())
	}
	fetcher := federation.NewGRPCFetcher(cfg.FederationPort, cfg.PodHost, fopts...)

	people := service.NewPeopleService(persons, fetcher, service.PeopleConfig{
		PodHost:      cfg.PodHost,
		FetchTimeout: cfg.FetchTimeout,
		Guard:        holddown.NewPG(db.Pool, cfg.HoldWindow, cfg.HoldMaxFails, cfg.HoldFor),
		Metrics:      m,
		Logger:       logger,
	})
	lifecycle := service.NewLifecycleService(postgres.NewLifecycleRepo(db), postgres.NewContactRepo(db), m, logger)

	return &app{
		people:    people,
		persons:   persons,
		accounts:  service.NewAccountService(users, persons, people, lifecycle, cfg.PodHost, []byte(cfg.JWTKey), cfg.AccessTTL, logger),
		lifecycle: lifecycle,
		content:   service.NewContentService(postgres.NewContentRepo(db)),
		search:    search.NewFacade(postgres.NewSearchRepo(db), search.DefaultLimit),
		signKey:   []byte(cfg.JWTKey),
	}
}

func serve(ctx context.Context, cfg config.Config, a *app, reg *prometheus.Registry, m *metrics.Metrics, logger *zap.Logger) error {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.MetricsUnary(m),
			grpcserver.AuthUnary(a.signKey),
			grpcserver.LoggingUnary(logger),
		),
	}
	if !cfg.Dev {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	peoplev1.RegisterPeopleServer(s, grpcserver.New(a.people, a.search, a.accounts))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var ms *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		ms = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", !cfg.Dev))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
		if ms != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(sctx)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
