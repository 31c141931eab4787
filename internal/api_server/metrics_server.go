package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/metrics"
)

type MetricServer struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
}

func NewMetricServer(bindAddress string, listener net.Listener) *MetricServer {
	router := chi.NewRouter()

	prometheusMetricHandler := metrics.NewPrometheusMetricsHandler()
	router.Handle("/metrics", prometheusMetricHandler.Handler())

	return &MetricServer{
		bindAddress: bindAddress,
		listener:    listener,
		httpServer: &http.Server{
			Addr:    bindAddress,
			Handler: router,
		},
	}
}

func (m *MetricServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.httpServer.SetKeepAlivesEnabled(false)
		_ = m.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("metrics_server").Info("metrics server terminated")
	}()

	zap.S().Named("metrics_server").Infof("serving metrics: %s", m.bindAddress)
	if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
