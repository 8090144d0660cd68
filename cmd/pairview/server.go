package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/pairview"
)

// statusSource is the part of a session the status endpoint reads.
type statusSource interface {
	Status() pairview.Status
}

// newRouter serves Prometheus metrics from gatherer and session status.
func newRouter(gatherer prometheus.Gatherer, session statusSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(session.Status()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "statusHandler",
				"error":    err.Error(),
			}).Warn("Failed to encode status")
		}
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}
