package api

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

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/aleph/config"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/backend"
	"github.com/meghashyamc/aleph/validation"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	router     *gin.Engine
	httpServer *http.Server
	backend    *backend.Service
	validator  *validation.Validator
	logger     logger.Logger
	cfg        *config.Config
}

// Run serves the HTTP API on the loopback interface until ctx is cancelled or the process is
// interrupted, then shuts the server and the backend down.
func Run(ctx context.Context, cfg *config.Config, logger logger.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := &server{
		logger: logger,
		cfg:    cfg,
	}
	if err := s.setupDependencies(); err != nil {
		return err
	}
	s.setupRouter()

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%s", cfg.GetPort()))
	if err != nil {
		s.logger.Error("could not listen", "port", cfg.GetPort(), "err", err.Error())
		s.backend.Close()
		return err
	}

	return s.serve(ctx, listener)
}

func (s *server) setupDependencies() error {
	var err error
	s.backend, err = backend.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating backend", "err", err.Error())
		return err
	}
	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		s.backend.Close()
		return err
	}

	return nil

}

func (s *server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := newRouter(s.logger, s.cfg.GetAllowedOrigins())

	setupRoutes(router, s.logger, s.backend, s.validator)

	s.router = router
}

func (s *server) serve(ctx context.Context, listener net.Listener) error {
	return s.serveWith(ctx, listener, s.backend.Close)
}

// serveWith serves on listener until ctx is done or serving fails, then calls closeBackend once
// in-flight requests have drained.
func (s *server) serveWith(ctx context.Context, listener net.Listener, closeBackend func() error) error {
	s.httpServer = &http.Server{
		Handler:           s.router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving http api", "addr", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			s.logger.Error("http server stopped", "err", runErr.Error())
		}
	}

	s.logger.Info("starting to shut down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error shutting down http server", "err", err.Error())
	}
	if err := closeBackend(); err != nil {
		s.logger.Error("error closing backend", "err", err.Error())
	}
	s.logger.Info("shut down http server successfully")

	return runErr
}
