package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/personaforge/personaforge/internal/api/handlers"
	"github.com/personaforge/personaforge/internal/api/middleware"
	"github.com/personaforge/personaforge/internal/audit"
	"github.com/personaforge/personaforge/internal/auth"
	"github.com/personaforge/personaforge/internal/cache"
	"github.com/personaforge/personaforge/internal/config"
	"github.com/personaforge/personaforge/internal/embedding"
	"github.com/personaforge/personaforge/internal/generator"
	"github.com/personaforge/personaforge/internal/llm"
	"github.com/personaforge/personaforge/internal/template"
	"github.com/personaforge/personaforge/internal/vectorstore"
	"github.com/personaforge/personaforge/pkg/webfetch"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	jwt   *auth.JWTMiddleware
	llmGW llm.Gateway
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		llmGW: llm.NewGateway(cfg.LLM),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Services
	var c *cache.Cache
	if rt.redis != nil {
		c = cache.NewCache(rt.redis)
	}
	templateSvc := template.NewService(rt.db, c)
	auditSvc := audit.NewService(rt.db)
	vectors := vectorstore.NewStore(rt.db)
	indexer := embedding.NewIndexer(rt.llmGW, vectors, rt.cfg.LLM.EmbeddingModel)
	genSvc := generator.NewService(rt.llmGW, templateSvc, webfetch.NewFetcher(), rt.cfg.LLM.DefaultModel)

	templateH := handlers.NewTemplateHandler(templateSvc, auditSvc, indexer, vectors)
	generateH := handlers.NewGenerateHandler(genSvc, templateSvc, auditSvc, indexer)
	taxonomyH := handlers.NewTaxonomyHandler(templateSvc)
	adminH := handlers.NewAdminHandler(auditSvc)
	modelsH := handlers.NewModelsHandler(rt.llmGW)

	r.Group(func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", templateH.List)
			r.Post("/", templateH.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", templateH.Get)
				r.Delete("/", templateH.Delete)
				r.Post("/edit", templateH.Edit)
				r.Post("/copy", templateH.Copy)
				r.Post("/publish", templateH.Publish)
				r.Post("/unpublish", templateH.Unpublish)
				r.Get("/versions", templateH.Versions)
				r.Get("/similar", templateH.Similar)
				r.Get("/export.json", templateH.ExportJSON)
				r.Get("/export.xml", templateH.ExportXML)
				r.Post("/category", templateH.SetCategory)
				r.Post("/tags", templateH.SetTags)
			})
		})

		r.Post("/optimize-schema/{id}", generateH.Optimize)
		r.Post("/generate-schema", generateH.Generate)
		r.Post("/use-generated-schema", generateH.UseGenerated)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", taxonomyH.ListCategories)
			r.Post("/", taxonomyH.CreateCategory)
		})
		r.Route("/tags", func(r chi.Router) {
			r.Get("/", taxonomyH.ListTags)
			r.Post("/", taxonomyH.CreateTag)
		})

		r.Get("/models", modelsH.List)
		r.Get("/admin/audit", adminH.AuditLogs)
	})

	return r
}
