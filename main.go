package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krau/konarate/config"
	"github.com/krau/konarate/logging"
	"github.com/krau/konarate/onnx"
	"github.com/krau/konarate/server"
)

func main() {
	cfg := config.C()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	logger.Info("Starting konarate", zap.String("device", cfg.Device))

	libPath := onnx.LibPath(cfg.Libonnx)
	logger.Info("Using ONNX Runtime library", zap.String("path", libPath))
	if err := onnx.Init(libPath); err != nil {
		logger.Fatal("Failed to initialize ONNX Runtime", zap.Error(err))
	}
	defer onnx.Destroy()

	svc, err := server.Init(cfg, logger)
	if err != nil {
		logger.Error("Failed to load models", zap.Error(err))
		onnx.Destroy()
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(svc, server.Options{
		Token:          cfg.Token,
		JWTSecret:      cfg.JWTSecret,
		AllowOrigins:   cfg.AllowOrigins,
		MaxUploadSize:  cfg.MaxUploadSize,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}, logger)

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Listening", zap.String("address", srv.Addr))
	if err := serveHTTPServer(srv, shutdownTimeout, logger); err != nil {
		logger.Error("Server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		logger.Warn("Models did not shut down cleanly", zap.Error(err))
	}
	logger.Info("shut down")
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a signal
// arrives, then shuts down gracefully within shutdownTimeout.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
