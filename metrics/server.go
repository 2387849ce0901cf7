package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ErrEmptyAddress = errors.New("metrics server address is empty")

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server on addr. The build info of service is registered
// as a constant gauge. An empty addr yields a server that is never started.
func New(service, addr string) (*MetricsServer, error) {
	if addr == "" {
		return &MetricsServer{}, nil
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "proofregistry_build_info",
		Help:        "Build information of the running service",
		ConstLabels: prometheus.Labels{"service": service},
	})
	buildInfo.Set(1)
	if err := prometheus.Register(buildInfo); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return ErrEmptyAddress
	}
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
