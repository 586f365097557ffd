package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const serverShutdownTimeout = 10 * time.Second

/*
Server serves the status endpoints of the agent:
- /health answers as long as the process is up
- /api/v1/active-jobs lists the jobs being built
- /metrics exposes the prometheus metrics.
*/
type Server struct {
	address    string
	listener   net.Listener
	restServer *http.Server
}

func NewServer(address string, listener net.Listener, a *Agent) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	RegisterApi(router, a)

	return &Server{
		address:    address,
		listener:   listener,
		restServer: &http.Server{Addr: address, Handler: router},
	}
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := s.restServer.Shutdown(shutdownCtx); err != nil {
			zap.S().Named("server").Errorw("failed to graceful shutdown the server", "error", err)
		}
	}()

	zap.S().Named("server").Infow("serving agent status", "address", s.address)
	if err := s.restServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
