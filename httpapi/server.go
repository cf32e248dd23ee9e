// Package httpapi exposes webhook intake, the external sweep trigger and a
// liveness probe over fiber.
package httpapi

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-escrow-pipeline/core"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAddr            = ":8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultBodyLimit       = 1 << 20
)

type Option func(*Server)

func WithAddress(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.address = addr
		}
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.readTimeout = timeout
		}
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.writeTimeout = timeout
		}
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type Server struct {
	eg     *errgroup.Group
	notify chan error

	App *fiber.App

	address         string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration

	logger core.Logger
}

func NewServer(opts ...Option) *Server {
	group, _ := errgroup.WithContext(context.Background())
	group.SetLimit(1)

	s := &Server{
		eg:              group,
		notify:          make(chan error, 1),
		address:         defaultAddr,
		readTimeout:     defaultReadTimeout,
		writeTimeout:    defaultWriteTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		_, s.logger = glog.Resolve("pipeline.http", nil, nil)
	}

	s.App = fiber.New(fiber.Config{
		ReadTimeout:           s.readTimeout,
		WriteTimeout:          s.writeTimeout,
		BodyLimit:             defaultBodyLimit,
		DisableStartupMessage: true,
		JSONDecoder:           json.Unmarshal,
		JSONEncoder:           json.Marshal,
		ErrorHandler:          errorHandler,
	})
	return s
}

func (s *Server) Start() {
	s.eg.Go(func() error {
		if err := s.App.Listen(s.address); err != nil {
			s.notify <- err
			close(s.notify)
			return err
		}
		return nil
	})
	s.logger.Info("http server started", "address", s.address)
}

// Notify reports a listener failure.
func (s *Server) Notify() <-chan error {
	return s.notify
}

func (s *Server) Shutdown() error {
	var shutdownErrors []error

	if err := s.App.ShutdownWithTimeout(s.shutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("http server shutdown failed", "error", err)
		shutdownErrors = append(shutdownErrors, err)
	}
	if err := s.eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("http listener exited with error", "error", err)
		shutdownErrors = append(shutdownErrors, err)
	}
	s.logger.Info("http server stopped")
	return errors.Join(shutdownErrors...)
}
