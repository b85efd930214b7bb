package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rl1809/book-lending/internal/adapter/handler"
	"github.com/rl1809/book-lending/internal/adapter/handler/rpc"
	"github.com/rl1809/book-lending/internal/adapter/storage"
	"github.com/rl1809/book-lending/internal/config"
	"github.com/rl1809/book-lending/internal/core/service"
	"github.com/rl1809/book-lending/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger.Setup(cfg.LogLevel, cfg.IsProduction())

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.StoreTimeout)
	defer cancel()

	backend, err := storage.OpenBackend(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}

	guards, closeGuards, err := storage.OpenGuards(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to connect redis: %v", err)
	}

	catalogService := service.NewCatalogService(backend.Books, cfg.StoreTimeout)
	lendingService := service.NewLendingService(backend.Books, backend.Loans, guards,
		service.WithStoreTimeout(cfg.StoreTimeout))
	sessionService := service.NewSessionService(cfg.JWTSecret, cfg.JWTTTL, guards)

	// Initialize gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			handler.UnaryLogger(),
			handler.UnaryAuth(sessionService, handler.ProtectedMethods(cfg.ProtectedRoutes)),
		))
		rpc.RegisterLendingServer(grpcServer, handler.NewGRPCHandler(lendingService))

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logrus.Fatalf("failed to listen: %v", err)
		}

		go func() {
			logrus.Infof("gRPC server listening on %s", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logrus.Errorf("gRPC server error: %v", err)
			}
		}()
	}

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(catalogService, lendingService, sessionService, cfg)
	app := handler.NewApp(cfg, httpHandler)

	go func() {
		logrus.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			logrus.Errorf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.Errorf("HTTP shutdown: %v", err)
	}
	logrus.Info("HTTP server stopped")

	if grpcServer != nil {
		grpcServer.GracefulStop()
		logrus.Info("gRPC server stopped")
	}

	// Close connections
	if err := closeGuards(); err != nil {
		logrus.Errorf("close redis: %v", err)
	}
	if err := backend.Close(shutdownCtx); err != nil {
		logrus.Errorf("close store: %v", err)
	}
	logrus.Info("connections closed")
}
