/**
 * @description
 * This file sets up the HTTP router for the superapp backend. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * middleware stack: request IDs, logging, panic recovery, timeouts, CORS, tracing,
 * metrics and JWT authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the mobile and web clients.
 * - internal/metrics: Prometheus request metrics and the /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/transfa/superapp-backend/internal/metrics"
)

// Routes creates and returns the router for the superapp API. m may be nil.
func Routes(h *Handlers, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", idempotencyKeyHeader},
		ExposedHeaders:   []string{"Link", "Retry-After", replayedHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(Tracing)
	if m != nil {
		r.Use(m.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Post("/register", h.RegisterHandler)
	r.Post("/login", h.LoginHandler)
	r.Post("/verify-otp", h.VerifyOTPHandler)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/wallet/balance", h.BalanceHandler)
		r.Get("/transactions", h.ListTransactionsHandler)

		r.Post("/money/request", h.CreateMoneyRequestHandler)
		r.Post("/request_money", h.RequestMoneyHandler)
		r.Get("/money/requests", h.ListMoneyRequestsHandler)
		r.Post("/money/requests/{requestID}/decline", h.DeclineMoneyRequestHandler)
		r.Post("/money/requests/{requestID}/cancel", h.CancelMoneyRequestHandler)

		r.Get("/bill/recurring", h.ListRecurringBillsHandler)
		r.Delete("/bill/recurring/{billID}", h.CancelRecurringBillHandler)

		r.Post("/card/issue", h.IssueCardHandler)
		r.Get("/card", h.GetCardHandler)
		r.Post("/card/activate", h.ActivateCardHandler)
		r.Post("/card/deactivate", h.DeactivateCardHandler)

		r.Get("/investments", h.ListInvestmentsHandler)

		r.Post("/link_bank_account", h.LinkBankAccountHandler)
		r.Get("/bank_accounts", h.ListBankAccountsHandler)

		r.Get("/profile", h.GetProfileHandler)
		r.Post("/profile", h.CreateProfileHandler)
		r.Put("/profile", h.UpdateProfileHandler)

		r.Get("/notifications", h.ListNotificationsHandler)
		r.Post("/notifications/{notificationID}/read", h.MarkNotificationReadHandler)

		// Endpoints that move money share a per-user rate limit.
		r.Group(func(r chi.Router) {
			r.Use(h.MoneyRateLimit)

			r.Post("/wallet/deposit", h.DepositHandler)
			r.Post("/wallet/withdraw", h.WithdrawHandler)
			r.Post("/transfer", h.TransferHandler)
			r.Post("/send_money", h.SendMoneyHandler)
			r.Post("/money/requests/{requestID}/pay", h.PayMoneyRequestHandler)
			r.Post("/bill/pay", h.PayBillHandler)
			r.Post("/card/transaction", h.CardTransactionHandler)
			r.Post("/investments/buy", h.BuyInvestmentHandler)
			r.Post("/investments/sell", h.SellInvestmentHandler)
		})
	})

	return r
}
