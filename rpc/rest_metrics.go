package rpc

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsEndpoints exposes the prometheus registry, when there is one. With
// a different metrics exporter (or none) the route is not mounted.
func MetricsEndpoints(pr prometheus.Registerer) RegistrarFunc {
	return func(r *mux.Router) {
		gatherer, ok := pr.(prometheus.Gatherer)
		if !ok {
			return
		}
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{MaxRequestsInFlight: 1})).Methods(http.MethodGet, http.MethodOptions)
	}
}
