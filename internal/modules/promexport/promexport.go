// Package promexport provides the prometheus service: it serves the run's
// metrics registry over HTTP between startup and shutdown.
package promexport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/metrics"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Implementation is the catalog name of the exporter.
const Implementation = "prometheus"

const (
	keyAddress = "address"
	keyPath    = "path"

	defaultAddress = "127.0.0.1:9464"
	defaultPath    = "/metrics"
	shutdownGrace  = 5 * time.Second
)

// Service exposes the metrics registry of the host.
type Service struct {
	module.Base

	address string
	path    string

	server   *http.Server
	listener net.Listener
	served   chan struct{}

	mu       sync.Mutex
	serveErr error
}

var _ module.Module = (*Service)(nil)

// New creates the service.
func New() module.Module {
	return &Service{}
}

// Prepare reads address and path.
func (s *Service) Prepare(context.Context) error {
	var err error
	if s.address, err = s.OptionString(keyAddress, defaultAddress); err != nil {
		return err
	}
	s.path, err = s.OptionString(keyPath, defaultPath)
	return err
}

// Startup binds the listener and starts serving.
func (s *Service) Startup(context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to bind metrics listener").
			WithContext("address", s.address).
			Build()
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, metrics.HTTPHandler(s.Host().MetricsRegistry()))
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.listener = ln
	s.served = make(chan struct{})

	go func() {
		defer close(s.served)
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log().Error("Metrics server error", logfields.Error(err))
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}()
	s.Log().Info("Serving metrics", slog.String("address", ln.Addr().String()), slog.String("path", s.path))
	return nil
}

// Addr returns the bound address once started.
func (s *Service) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Check fails the run if the server stopped unexpectedly.
func (s *Service) Check(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serveErr != nil {
		return false, ferrors.WrapError(s.serveErr, ferrors.CategoryNetwork, "metrics server stopped").Build()
	}
	return false, nil
}

// Shutdown stops the server gracefully.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	err := s.server.Shutdown(ctx)
	<-s.served
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "metrics server shutdown").Build()
	}
	return nil
}
