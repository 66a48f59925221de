package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/epay"
	"github.com/fairyhunter13/points-exchange/internal/fulfillment"
	httpopenapi "github.com/fairyhunter13/points-exchange/internal/http/openapi"
	"github.com/fairyhunter13/points-exchange/internal/ledger"
	"github.com/fairyhunter13/points-exchange/internal/model"
	"github.com/fairyhunter13/points-exchange/internal/notify"
	"github.com/fairyhunter13/points-exchange/internal/obs"
)

// Fulfiller decides one payment callback.
type Fulfiller interface {
	Handle(ctx context.Context, p model.CallbackPayload) fulfillment.Decision
}

type App struct {
	Cfg      config.Config
	Engine   Fulfiller
	Ledger   ledger.Ledger
	Notifier *notify.Manager
	closing  atomic.Bool
	started  time.Time
}

type productView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Stock       int64  `json:"stock"`
	Status      string `json:"status"`
}

func NewApp(cfg config.Config, engine Fulfiller, l ledger.Ledger, m *notify.Manager) *App {
	return &App{Cfg: cfg, Engine: engine, Ledger: l, Notifier: m, started: time.Now()}
}

// StartShutdown stops accepting callbacks. Undecided callbacks get 503 so the
// gateway retries them against the next instance.
func (a *App) StartShutdown() {
	a.closing.Store(true)
}

func (a *App) notifyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	if err := r.ParseForm(); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	p := model.NewCallbackPayload(epay.Flatten(r.Form))
	d := a.Engine.Handle(r.Context(), p)
	obs.Logger.Debug("callback_acknowledged",
		"request_id", RequestIDFromContext(r.Context()),
		"order_no", p.OutTradeNo,
		"terminal", d.Terminal.String(),
	)
	WriteAck(w, d.Ack())
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	p, err := a.Ledger.Product(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if err != nil {
		obs.Logger.Error("product_lookup_failed", "product_id", id, "error", err)
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		Status:      p.Status,
	})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "application/json")
	if err := a.Ledger.Ping(ctx); err != nil {
		obs.Logger.Warn("health_store_unreachable", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	m := map[string]any{
		"fulfillment": obs.Snapshot(),
		"uptime_sec":  time.Since(a.started).Seconds(),
	}
	if a.Notifier != nil {
		m["notifications"] = a.Notifier.Metrics()
		m["worker_count"] = a.Notifier.WorkerCount()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Points Exchange API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
