package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/yourorg/tradesim/internal/auth"
)

func NewRouter(h *Handlers, hub *Hub, jwtSvc *auth.JWTService, allowedOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(jwtSvc))
		r.Get("/balance", h.GetBalance)
		r.Get("/portfolio", h.GetPortfolio)
		r.Get("/portfolio/history", h.GetPortfolioHistory)
		r.Get("/pnl", h.GetPeriodPnL)
		r.Get("/orders", h.GetOrders)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/transactions", h.GetTransactions)
		r.Get("/summary", h.GetSummary)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AdminOnly)
			r.Post("/funds", h.AddFunds)
			r.Post("/summaries/flush", h.FlushSummaries)
		})
	})

	r.Get("/ws", ServeWS(hub, h.logger))

	return r
}
