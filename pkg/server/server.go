// Package server запускает HTTP сервер сервиса: ConnectRPC поверх HTTP/1.1
// и HTTP/2 без TLS (h2c), проверки живости и готовности, корректная
// остановка по отмене контекста.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"heatnet/pkg/config"
	"heatnet/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Server HTTP сервер с поддержкой h2c
type Server struct {
	name   string
	cfg    config.HTTPConfig
	server *http.Server
}

// New оборачивает handler в h2c и ограничение размера тела запроса
func New(name string, cfg config.HTTPConfig, handler http.Handler) *Server {
	if cfg.MaxBodyBytes > 0 {
		handler = http.MaxBytesHandler(handler, cfg.MaxBodyBytes)
	}

	return &Server{
		name: name,
		cfg:  cfg,
		server: &http.Server{
			Addr:              cfg.Address(),
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

// Run слушает адрес из конфигурации до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve обслуживает lis до отмены ctx, затем ждёт завершения активных
// запросов не дольше ShutdownTimeout
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("HTTP server listening",
			"service", s.name,
			"address", lis.Addr().String(),
			"protocol", "HTTP/1.1 + h2c",
		)
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	logger.Log.Info("Shutting down HTTP server", "service", s.name, "timeout", timeout)
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("Forcing server close", "error", err)
		_ = s.server.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Log.Info("HTTP server stopped", "service", s.name)
	return nil
}
