package cache

import (
	"net/http"

	"github.com/buildvault/assetgraph/pkg/access"
)

// Manager holds separate cache instances for the workflow list and asset
// read endpoints, each with its own TTL, and provides targeted invalidation
// so a write only clears what it could have changed.
//
// A nil *Manager is valid and disables caching; every method tolerates a
// nil receiver.
type Manager struct {
	workflows *LRUCache
	assets    *LRUCache
}

// NewManager creates a Manager from the given configuration. If cfg is nil
// or disabled, it returns nil.
func NewManager(cfg *Config) *Manager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &Manager{
		workflows: NewLRUCache(cfg.MaxSize, cfg.WorkflowTTL),
		assets:    NewLRUCache(cfg.MaxSize, cfg.AssetTTL),
	}
}

// InvalidateAsset drops every cached read under /assets/{assetID} along with
// the workflow lists, since workflow content references asset state.
func (m *Manager) InvalidateAsset(routePrefix, assetID string) {
	if m == nil {
		return
	}
	m.assets.InvalidatePrefix(routePrefix + "/assets/" + assetID)
	m.workflows.InvalidateAll()
}

// InvalidateWorkflows clears the workflow list cache. Called on workflow
// create, advance and decide.
func (m *Manager) InvalidateWorkflows() {
	if m == nil {
		return
	}
	m.workflows.InvalidateAll()
}

// InvalidateAll clears both caches.
func (m *Manager) InvalidateAll() {
	if m == nil {
		return
	}
	m.workflows.InvalidateAll()
	m.assets.InvalidateAll()
}

// WorkflowsMiddleware returns middleware that caches workflow list responses.
// Lists are access-gated per user, so the cache key folds in the identity.
func (m *Manager) WorkflowsMiddleware() func(http.Handler) http.Handler {
	if m == nil {
		return passthrough
	}
	return KeyedMiddleware(m.workflows, func(r *http.Request) string {
		id, _ := access.IdentityFromContext(r.Context())
		return id.User + " " + r.URL.RequestURI()
	})
}

// AssetsMiddleware returns middleware that caches asset read responses.
func (m *Manager) AssetsMiddleware() func(http.Handler) http.Handler {
	if m == nil {
		return passthrough
	}
	return Middleware(m.assets)
}

// WriteInvalidation returns middleware that clears both caches after any
// non-GET request that succeeds. It is a coarse hook for mutating routes
// the targeted invalidation methods do not cover.
func (m *Manager) WriteInvalidation() func(http.Handler) http.Handler {
	if m == nil {
		return passthrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			crw := &captureResponseWriter{ResponseWriter: w}
			next.ServeHTTP(crw, r)
			if crw.statusCode >= 200 && crw.statusCode < 300 {
				m.InvalidateAll()
			}
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }
