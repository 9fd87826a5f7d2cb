package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/offline-pos/api/controllers"
	cartcontrollers "github.com/angelmondragon/offline-pos/api/controllers/cart"
	"github.com/angelmondragon/offline-pos/api/middleware"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/db"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/metrics"
)

// Deps are the services the terminal API serves. Store is nil when the
// terminal runs online-only.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Store        db.Pinger
	Cart         *cartcontrollers.Handlers
	Sync         controllers.SyncOperator
	Catalog      controllers.CatalogService
	Journal      controllers.Journal
	Connectivity controllers.ConnectivitySignal
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
	CORSOrigins  []string
}

func NewRouter(d Deps) http.Handler {
	logg := d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.HTTPMetrics),
		middleware.CORS(d.CORSOrigins),
		middleware.Operator(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(d.Config))
		r.Get("/ready", controllers.HealthReady(d.Config, d.Store, logg))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.Config != nil && d.Config.App.IsDev() {
		r.Mount("/debug", chimw.Profiler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			h := d.Cart
			r.Get("/", h.Get)
			r.Delete("/", h.Clear)
			r.Post("/items", h.AddItem)
			r.Patch("/items/{lineId}", h.UpdateItem)
			r.Delete("/items/{lineId}", h.RemoveItem)
			r.Post("/discount", h.ApplyDiscount)
			r.Put("/customer", h.SetCustomer)
			r.Post("/hold", h.Hold)
			r.Get("/held", h.ListHeld)
			r.Post("/resume/{sessionId}", h.Resume)
			r.Post("/checkout", h.Checkout)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", controllers.SyncStatus(d.Sync, logg))
			r.Get("/failed", controllers.SyncFailed(d.Sync, logg))
			r.Post("/drain", controllers.SyncDrain(d.Sync, logg))
			r.Route("/envelopes/{id}", func(r chi.Router) {
				r.Get("/history", controllers.SyncHistory(d.Sync, logg))
				r.Post("/retry", controllers.SyncRetry(d.Sync, logg))
				r.Post("/cancel", controllers.SyncCancel(d.Sync, logg))
			})
		})

		r.Get("/connectivity", controllers.ConnectivityGet(d.Connectivity, logg))
		r.Post("/connectivity", controllers.ConnectivitySet(d.Connectivity, logg))

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", controllers.CatalogStatus(d.Catalog, logg))
			r.Post("/refresh", controllers.CatalogRefresh(d.Catalog, logg))
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductSearch(d.Catalog, logg))
			r.Post("/", controllers.ProductSave(d.Catalog, logg))
			r.Get("/{id}", controllers.ProductGet(d.Catalog, logg))
			r.Put("/{id}", controllers.ProductSave(d.Catalog, logg))
		})
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", controllers.JournalList(d.Journal, logg))
			r.Get("/{id}", controllers.JournalGet(d.Journal, logg))
		})
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", controllers.CustomerSearch(d.Catalog, logg))
			r.Post("/", controllers.CustomerSave(d.Catalog, logg))
			r.Put("/{id}", controllers.CustomerSave(d.Catalog, logg))
			r.Delete("/{id}", controllers.CustomerDelete(d.Catalog, logg))
		})
	})

	return r
}
