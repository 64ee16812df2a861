package runnable

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

	"golang.org/x/net/netutil"
	"golang.org/x/xerrors"
)

type Server struct {
	address                string
	terminationGracePeriod time.Duration
	lameduck               time.Duration
	keepAlive              bool
	maxConnections         int
	handler                http.Handler
	logger                 *slog.Logger
	signals                []os.Signal
}

type Config struct {
	Address                string
	TerminationGracePeriod time.Duration
	Lameduck               time.Duration
	KeepAlive              bool
	MaxConnections         int
	Handler                http.Handler
	Logger                 *slog.Logger
}

func NewServer(c Config) *Server {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:                c.Address,
		terminationGracePeriod: c.TerminationGracePeriod,
		lameduck:               c.Lameduck,
		keepAlive:              c.KeepAlive,
		maxConnections:         c.MaxConnections,
		handler:                c.Handler,
		logger:                 logger,
		signals:                []os.Signal{syscall.SIGTERM, os.Interrupt},
	}
}

// Start serves until ctx is done or a termination signal arrives, waits for
// the lameduck period and then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return xerrors.Errorf("failed to listen on address %s: %w", s.address, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.maxConnections > 0 {
		listener = netutil.LimitListener(listener, s.maxConnections)
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.SetKeepAlivesEnabled(s.keepAlive)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, s.signals...)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return xerrors.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	}
	s.logger.Info("shutting down", "lameduck", s.lameduck)
	time.Sleep(s.lameduck)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.terminationGracePeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return xerrors.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
