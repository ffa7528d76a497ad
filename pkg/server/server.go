// Package server assembles the stores, workflow engine and HTTP router into
// a runnable service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/buildvault/assetgraph/pkg/access"
	"github.com/buildvault/assetgraph/pkg/approval"
	"github.com/buildvault/assetgraph/pkg/audit"
	"github.com/buildvault/assetgraph/pkg/cache"
	"github.com/buildvault/assetgraph/pkg/config"
	"github.com/buildvault/assetgraph/pkg/graph"
	"github.com/buildvault/assetgraph/pkg/ha"
)

// BasePath is the prefix all API routes are mounted under.
const BasePath = "/api/v1alpha1"

// Server wires the asset graph stores and the approval workflow engine to
// an HTTP router.
type Server struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *slog.Logger

	assets *graph.AssetStore
	edges  *graph.EdgeStore
	audits *audit.Store
	gate   access.Gate
	engine *approval.Engine
	caches *cache.Manager

	retention *audit.RetentionWorker
}

// New builds a Server from configuration and an open database handle.
func New(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		db:     db,
		logger: logger,
		assets: graph.NewAssetStore(db),
		edges:  graph.NewEdgeStore(db),
	}

	var engineOpts []approval.EngineOption
	engineOpts = append(engineOpts, approval.WithLogger(logger))
	if cfg.Workflow.DecidePolicy == string(approval.DecideLastWins) {
		engineOpts = append(engineOpts, approval.WithDecidePolicy(approval.DecideLastWins))
	}

	if cfg.Audit.Enabled {
		s.audits = audit.NewStore(db)
		engineOpts = append(engineOpts, approval.WithAuditStore(s.audits))
		s.retention = audit.NewRetentionWorker(s.audits, cfg.Audit.RetentionDays, logger)
	}

	if cfg.Auth.Gate == "allow-all" {
		s.gate = access.AllowAll{}
	} else {
		s.gate = access.NewStoreGate(db)
	}
	s.engine = approval.NewEngine(s.assets, s.edges, engineOpts...)

	if cfg.Cache.Enabled {
		s.caches = cache.NewManager(&cache.Config{
			Enabled:     true,
			WorkflowTTL: secondsOrDefault(cfg.Cache.WorkflowTTLSeconds, 15),
			AssetTTL:    secondsOrDefault(cfg.Cache.AssetTTLSeconds, 30),
			MaxSize:     cfg.Cache.MaxSize,
		})
	}

	return s
}

// Migrate creates or updates the database schema for every store, holding
// the migration lock so concurrent replicas do not race on AutoMigrate.
func (s *Server) Migrate(ctx context.Context) error {
	return ha.NewMigrationLocker(s.db).WithLock(ctx, s.migrate)
}

func (s *Server) migrate() error {
	if err := s.assets.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate assets: %w", err)
	}
	if err := s.edges.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate edges: %w", err)
	}
	if s.audits != nil {
		if err := s.audits.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate audit events: %w", err)
		}
	}
	if gate, ok := s.gate.(*access.StoreGate); ok {
		if err := gate.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate membership tables: %w", err)
		}
	}
	return nil
}

// MountRoutes creates the HTTP router with all API routes mounted.
func (s *Server) MountRoutes() (chi.Router, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	identity, err := s.identityMiddleware()
	if err != nil {
		return nil, err
	}
	r.Use(identity)

	var apiOpts []approval.RouterOption
	if s.caches != nil {
		apiOpts = append(apiOpts,
			approval.WithListCache(s.caches.WorkflowsMiddleware()),
			approval.WithAssetReadCache(s.caches.AssetsMiddleware()),
		)
	}
	api := approval.NewRouter(s.engine, s.assets, s.edges, s.audits, s.gate, apiOpts...)

	r.Route(BasePath, func(r chi.Router) {
		if s.caches != nil {
			r.Use(s.caches.WriteInvalidation())
		}
		r.Mount("/", api)
	})

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	return r, nil
}

// Start launches background workers. It returns immediately; workers stop
// when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	if s.retention != nil {
		go s.retention.Run(ctx)
	}
}

func (s *Server) identityMiddleware() (func(http.Handler) http.Handler, error) {
	if s.cfg.Auth.Mode == "jwt" {
		mw, err := access.NewJWTIdentityMiddleware(access.JWTIdentityConfig{
			SubjectClaim:  s.cfg.Auth.SubjectClaim,
			EmailClaim:    s.cfg.Auth.EmailClaim,
			PublicKeyPath: s.cfg.Auth.PublicKeyPath,
			Logger:        s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("configure jwt auth: %w", err)
		}
		return mw, nil
	}
	return access.IdentityMiddleware(), nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func secondsOrDefault(secs, fallback int) time.Duration {
	if secs <= 0 {
		secs = fallback
	}
	return time.Duration(secs) * time.Second
}
