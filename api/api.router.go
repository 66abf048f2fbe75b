package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itsatony/sensorhub/api/middleware"
	"github.com/itsatony/sensorhub/api/resources"
	"github.com/itsatony/sensorhub/internal/hubservice"
)

// RouterConfig carries the HTTP concerns that live outside the sensor service
type RouterConfig struct {
	AllowedOrigins []string
	MetricsPath    string
	Health         http.HandlerFunc
	Metrics        http.Handler
}

type Router struct {
	router    *mux.Router
	config    RouterConfig
	resources *resources.Resources
	handler   http.Handler
}

func NewRouter(svc hubservice.SensorService, cfg RouterConfig) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		config:    cfg,
		resources: resources.NewResources(svc),
	}
	r.resources.SetHealthCheck(cfg.Health)
	if cfg.Metrics != nil {
		r.resources.SetMetrics(cfg.Metrics.ServeHTTP)
	}

	r.setupRoutes()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.handler = middleware.Recovery(middleware.CORS(origins)(middleware.RequestLogger(r.router)))
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Operational routes
	if r.resources.HealthCheck != nil {
		api.HandleFunc("/health", r.resources.HealthCheck).Methods(http.MethodGet)
	}
	if r.resources.Metrics != nil {
		path := r.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.router.HandleFunc(path, r.resources.Metrics).Methods(http.MethodGet)
		api.HandleFunc("/metrics", r.resources.Metrics).Methods(http.MethodGet)
	}

	// Sensors
	sensors := api.PathPrefix("/sensors").Subrouter()
	sensors.HandleFunc("", r.resources.Sensors.ListSensors).Methods(http.MethodGet)
	sensors.HandleFunc("", r.resources.Sensors.CreateSensor).Methods(http.MethodPost)
	sensors.HandleFunc("/nearby", r.resources.Sensors.FindNearby).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}", r.resources.Sensors.GetSensor).Methods(http.MethodGet)
	sensors.HandleFunc("/{id:[0-9]+}", r.resources.Sensors.DeleteSensor).Methods(http.MethodDelete)
	sensors.HandleFunc("/{id:[0-9]+}/telemetry", r.resources.Sensors.RecordTelemetry).Methods(http.MethodPut)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}
