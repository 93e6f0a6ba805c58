package api

import (
	"net/http"
	"time"

	"github.com/bgbye/bgbye/internal/api/handlers"
	"github.com/bgbye/bgbye/internal/api/middleware"
	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/bgbye/bgbye/pkg/errors"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/metrics"
	"github.com/bgbye/bgbye/pkg/utils/response"
	"github.com/gorilla/mux"
)

// APIPrefix is the path prefix of every versioned route
const APIPrefix = "/api/v1"

// Router handles HTTP routing
type Router struct {
	router  *mux.Router
	handler http.Handler
	logger  logger.Logger
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// NewRouter creates a new HTTP router. m may be nil to disable /metrics.
func NewRouter(sessionService service.SessionService, m *metrics.PrometheusMetrics, log logger.Logger, cfg config.ServerConfig) *Router {
	router := mux.NewRouter()

	// Add middleware
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.RecoveryMiddleware(log))
	if m != nil {
		router.Use(m.HTTPMiddleware)
		router.Handle("/metrics", m.MetricsHandler()).Methods(http.MethodGet)
	}

	// Create handlers
	api := router.PathPrefix(APIPrefix).Subrouter()
	handlers.NewSessionHandler(sessionService, cfg.MaxUploadBytes).RegisterRoutes(api)
	handlers.NewPayloadHandler(sessionService).RegisterRoutes(api)
	handlers.NewPreferenceHandler(sessionService).RegisterRoutes(api)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	// preflight requests match no route, so CORS wraps the whole router
	return &Router{
		router:  router,
		handler: middleware.CORSMiddleware(cfg.AllowedOrigins...)(router),
		logger:  log,
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// notFoundHandler handles 404 requests
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	response.HandleError(w, errors.New(errors.ErrNotFound, "no route for %s", r.URL.Path))
}
