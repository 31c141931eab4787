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
	"go.uber.org/zap"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/config"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/handlers"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/service"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/metrics"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg        *config.Config
	fittingSrv *service.FittingService
	listener   net.Listener
}

// New returns a new instance of the fitting API server.
func New(cfg *config.Config, fittingSrv *service.FittingService, listener net.Listener) *Server {
	return &Server{
		cfg:        cfg,
		fittingSrv: fittingSrv,
		listener:   listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handlers.NewFittingHandler(s.fittingSrv).RegisterRoutes(router)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

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
