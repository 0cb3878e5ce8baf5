package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/kmuriithi/sacco-ledger-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/account", func(r chi.Router) {
				r.Post("/deposit", h.Deposit)
				r.Post("/withdraw", h.Withdraw)
				r.Post("/transfer", h.Transfer)
				r.Get("/balance", h.GetBalance)
			})

			r.Route("/loans", func(r chi.Router) {
				r.Post("/", h.ApplyLoan)
				r.Get("/", h.GetLoans)
				r.Post("/{id}/repay", h.RepayLoan)
				r.Post("/{id}/withdraw", h.WithdrawFromLoan)
				r.Get("/{id}/repayments", h.GetRepayments)
			})

			r.Route("/shares", func(r chi.Router) {
				r.Post("/buy", h.BuyShares)
				r.Post("/transfer", h.TransferShares)
				r.Get("/", h.GetShares)
			})

			r.Get("/transactions", h.GetTransactions)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.AdminOnly)

				r.Get("/loans/pending", h.GetPendingLoans)
				r.Post("/loans/{id}/review", h.ReviewLoan)
				r.Post("/dividends", h.DistributeDividends)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
