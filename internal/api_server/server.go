package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kubev2v/build-orchestrator/internal/config"
	handlers "github.com/kubev2v/build-orchestrator/internal/handlers/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/pkg/log"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
	"github.com/kubev2v/build-orchestrator/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

// Services is the dependency set of the api process, built once at startup and shared by
// the HTTP api and the artifact consumer.
type Services struct {
	Jobs      *service.JobService
	Artifacts *service.ArtifactService
}

func NewServices(cfg *config.Config, s store.Store, publisher service.Publisher) *Services {
	jobs := service.NewJobService(s, publisher, cfg.Queue.Name, cfg.Service.ListLimit)
	return &Services{
		Jobs:      jobs,
		Artifacts: service.NewArtifactService(s, jobs),
	}
}

type Server struct {
	cfg      *config.Config
	services *Services
	listener net.Listener
}

// New returns a new instance of a build server.
func New(
	cfg *config.Config,
	services *Services,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		services: services,
		listener: listener,
	}
}

// Handler returns the router of the api with its middlewares.
func (s *Server) Handler() (http.Handler, error) {
	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	if err := metricMiddleware.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"https://*", "http://*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}),
		chiMiddleware.RequestID,
		middleware.RequestID,
		log.Logger(zap.L(), "router"),
		chiMiddleware.Recoverer,
	)

	h := handlers.NewServiceHandler(s.services.Jobs, s.services.Artifacts)
	router.Get("/health", h.Health)
	h.Routes(router)

	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	handler, err := s.Handler()
	if err != nil {
		return err
	}
	srv := http.Server{Addr: s.cfg.Service.Address, Handler: handler}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
