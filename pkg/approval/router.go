package approval

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildvault/assetgraph/pkg/access"
	"github.com/buildvault/assetgraph/pkg/audit"
	"github.com/buildvault/assetgraph/pkg/graph"
)

type routerOptions struct {
	listCache      func(http.Handler) http.Handler
	assetReadCache func(http.Handler) http.Handler
}

// RouterOption customizes route middleware.
type RouterOption func(*routerOptions)

// WithListCache wraps GET /approval-workflows with the given middleware.
func WithListCache(mw func(http.Handler) http.Handler) RouterOption {
	return func(o *routerOptions) { o.listCache = mw }
}

// WithAssetReadCache wraps the GET routes under /assets with the given
// middleware.
func WithAssetReadCache(mw func(http.Handler) http.Handler) RouterOption {
	return func(o *routerOptions) { o.assetReadCache = mw }
}

// NewRouter creates a chi router with the approval workflow and asset routes.
// auditStore may be nil, in which case the history route is omitted.
func NewRouter(
	engine *Engine,
	assets *graph.AssetStore,
	edges *graph.EdgeStore,
	auditStore *audit.Store,
	gate access.Gate,
	opts ...RouterOption,
) chi.Router {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	r.Route("/approval-workflows", func(r chi.Router) {
		if o.listCache != nil {
			r.With(o.listCache).Get("/", listWorkflowsHandler(engine, gate))
		} else {
			r.Get("/", listWorkflowsHandler(engine, gate))
		}
		r.Post("/", createWorkflowHandler(engine, gate))
		r.Put("/", updateWorkflowHandler(engine, gate))
	})

	r.Route("/assets/{id}", func(r chi.Router) {
		get := func(pattern string, h http.HandlerFunc) {
			if o.assetReadCache != nil {
				r.With(o.assetReadCache).Get(pattern, h)
			} else {
				r.Get(pattern, h)
			}
		}
		get("/", getAssetHandler(assets))
		get("/revisions", listRevisionsHandler(assets))
		r.Post("/revisions", createRevisionHandler(assets, gate))
		get("/edges", listEdgesHandler(edges))
		if auditStore != nil {
			get("/history", assetHistoryHandler(assets, auditStore))
		}
	})

	return r
}
