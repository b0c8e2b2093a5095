package webchat

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/petfood-agent/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

type ServerOptions struct {
	Addr              string
	Handler           http.Handler
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// Listener, when set, is served instead of listening on Addr.
	Listener net.Listener
	// Store runs its tombstone eviction loop for the lifetime of the server.
	Store *session.Store
	Feed  *EventFeed
	// Closers run after the HTTP server has shut down.
	Closers []func() error
}

// Server drives the HTTP server together with the background loops the
// gateway depends on.
type Server struct {
	opts    ServerOptions
	httpSrv *http.Server
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Handler == nil {
		return nil, errors.New("webchat: handler is nil")
	}
	if opts.Addr == "" && opts.Listener == nil {
		return nil, errors.New("webchat: addr is empty")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	httpSrv := &http.Server{
		Addr:              opts.Addr,
		Handler:           opts.Handler,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
	return &Server{opts: opts, httpSrv: httpSrv}, nil
}

// Run serves until ctx is cancelled or the process receives SIGINT/SIGTERM.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if s == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	eg, egCtx := errgroup.WithContext(srvCtx)

	if s.opts.Store != nil {
		s.opts.Store.StartEvictionLoop(srvCtx)
	}
	if s.opts.Feed != nil {
		if err := s.opts.Feed.Start(srvCtx); err != nil {
			return errors.Wrap(err, "start event feed")
		}
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-egCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if s.opts.Feed != nil {
			s.opts.Feed.Stop()
		}
		for _, c := range s.opts.Closers {
			if err := c(); err != nil {
				log.Error().Err(err).Msg("close error")
			}
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		var err error
		if s.opts.Listener != nil {
			log.Info().Str("addr", s.opts.Listener.Addr().String()).Msg("starting petfood-agent server")
			err = s.httpSrv.Serve(s.opts.Listener)
		} else {
			log.Info().Str("addr", s.httpSrv.Addr).Msg("starting petfood-agent server")
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
