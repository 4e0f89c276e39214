package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"tzscheduler/internal/config"
	"tzscheduler/internal/grpcweb"
	"tzscheduler/internal/handler"
	"tzscheduler/internal/middleware"
	"tzscheduler/internal/rpc"
	"tzscheduler/internal/service"
	"tzscheduler/internal/store"
	"tzscheduler/internal/validation"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
		migrate  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and gRPC servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.GRPCAddr = grpcAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, newLogger(cfg), migrate)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "REST listen address (overrides HTTP_ADDR)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides GRPC_ADDR)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("connected to postgres")

	if migrate {
		if err := store.Migrate(ctx, pool); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	st := store.New(pool)
	v, err := validation.New()
	if err != nil {
		return err
	}
	events := service.NewEvents(st, log)
	accounts := service.NewAccounts(st, service.TokenConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, log)
	limiter := middleware.NewRateLimiter(ctx, cfg.LoginRateRPS, cfg.LoginRateBurst)

	grpcSrv := rpc.NewGRPCServer(rpc.NewServer(events, accounts, v, log), cfg.JWTSecret, limiter)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	// browsers reach gRPC through the bridge on the HTTP port
	conn, err := grpc.NewClient(loopback(lis.Addr()), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("grpc-web dial: %w", err)
	}
	defer conn.Close()
	bridge := grpcweb.New(conn, log)

	mux := http.NewServeMux()
	mux.Handle("/api/", handler.New(events, accounts, v, log).Routes(handler.Options{
		Secret:      cfg.JWTSecret,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Limiter:     limiter,
	}))
	mux.Handle("/"+rpc.ServiceName+"/", middleware.RequestID(middleware.Logger(log)(bridge.Handler(cfg.CORSAllowedOrigins))))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return err
	})
	return g.Wait()
}

// loopback turns a listener address such as [::]:50051 into a dialable
// local target.
func loopback(addr net.Addr) string {
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return net.JoinHostPort("127.0.0.1", port)
}
