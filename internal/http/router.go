package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/KachiAlex/kex/internal/auth"
)

type RouterConfig struct {
	Tokens         *auth.TokenIssuer
	Orders         *OrdersHandler
	Auth           *AuthHandler
	Products       *ProductsHandler
	Categories     *CategoriesHandler
	Tickets        *TicketsHandler
	Newsletter     *NewsletterHandler
	AllowedOrigins []string
	RateRPS        float64
	RateBurst      int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
		AllowCredentials: false,
	}))
	r.Use(RateLimitMiddleware(cfg.RateRPS, cfg.RateBurst))

	requireAuth := AuthMiddleware(cfg.Tokens)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "kex-api"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", cfg.Auth.Signup)
			r.Post("/login", cfg.Auth.Login)
			r.Get("/google", cfg.Auth.GoogleRedirect)
			r.Get("/google/callback", cfg.Auth.GoogleCallback)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", cfg.Auth.Me)
				r.Patch("/me", cfg.Auth.UpdateMe)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Products.List)
			r.Get("/featured", cfg.Products.Featured)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, RequireAdmin)
				r.Post("/", cfg.Products.Create)
				r.Put("/{id}", cfg.Products.Update)
				r.Delete("/{id}", cfg.Products.Delete)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", cfg.Categories.List)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, RequireAdmin)
				r.Post("/", cfg.Categories.Create)
				r.Patch("/{id}", cfg.Categories.Update)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/init", cfg.Orders.Init)
			r.Get("/verify/{reference}", cfg.Orders.Verify)
			r.Post("/webhooks/{provider}", cfg.Orders.Webhook)
			r.Get("/", cfg.Orders.List)
			r.Get("/stats", cfg.Orders.Stats)
			r.Get("/frequent", cfg.Orders.Frequent)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, RequireAdmin)
				r.Post("/escrow/{reference}/release", cfg.Orders.ReleaseEscrow)
			})
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", cfg.Tickets.Create)
			r.Get("/", cfg.Tickets.List)
		})

		r.Post("/newsletter/subscribe", cfg.Newsletter.Subscribe)
	})

	return r
}
