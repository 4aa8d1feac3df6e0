/**
 * @description
 * This file sets up the HTTP router for the service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for logging, panic recovery, timeouts, and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the service router.
func Routes(h *Handlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/login", h.LoginHandler)

		// Provider callback: unauthenticated, guarded by the token segment.
		r.Post("/payments/callback/{token}", h.StkCallbackHandler)

		// Group routes that require authentication.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))

			r.Get("/dashboard", h.DashboardHandler)

			r.Get("/surveys", h.SurveysHandler)
			r.Post("/surveys/{surveyID}/start", h.StartSurveyHandler)
			r.Post("/surveys/{surveyID}/complete", h.CompleteSurveyHandler)

			r.Get("/wallet/transactions", h.TransactionsHandler)
			r.Post("/wallet/withdraw", h.WithdrawHandler)

			r.Post("/payments/premium/initiate", h.InitiatePaymentHandler)
			r.Get("/payments/status", h.PaymentStatusHandler)
		})
	})

	return r
}
