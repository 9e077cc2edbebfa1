package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/arjunvn/kaapi-store/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the storefront API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.corsOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		// The reviews page is public; a token only toggles ownership flags.
		r.With(h.authMiddleware.Optional).Get("/reviews", h.ListReviews)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/protected", h.Protected)

			r.Get("/cart", h.GetCart)
			r.Post("/cart", h.SaveCart)

			r.Post("/checkout", h.Checkout)
			r.Post("/verify-payment", h.VerifyPayment)
			r.Get("/checkout-success/{orderID}", h.CheckoutSuccess)
			r.Get("/orders", h.GetOrders)

			r.Get("/account", h.GetAccount)
			r.Post("/account/address", h.AddAddress)
			r.Put("/account/address/{id}", h.UpdateAddress)
			r.Delete("/account/address/{id}", h.DeleteAddress)
			r.Post("/account/password", h.ChangePassword)

			r.Get("/subscription/status", h.SubscriptionStatus)
			r.Post("/subscription", h.Subscribe)

			r.Post("/reviews", h.AddReview)
			r.Put("/reviews/{id}", h.UpdateReview)
			r.Delete("/reviews/{id}", h.DeleteReview)
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
