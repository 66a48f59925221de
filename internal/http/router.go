package httpapi

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging, middleware.Recoverer)

	method := app.Cfg.CallbackMethod
	if method == "" {
		method = http.MethodGet
	}
	r.With(WithRateLimit(app.Cfg.CallbackRateRPS, app.Cfg.CallbackRateBurst)).
		Method(method, "/api/notify", http.HandlerFunc(app.notifyHandler))

	r.Get("/api/products/{id}", app.getProductHandler)
	r.Get("/healthz", app.healthHandler)
	r.Get("/debug/metrics", app.metricsHandler)
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
	return r
}
