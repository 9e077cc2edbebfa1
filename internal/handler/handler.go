// Package handler contains the HTTP handlers of the storefront API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arjunvn/kaapi-store/internal/middleware"
	"github.com/arjunvn/kaapi-store/internal/model"
	"github.com/arjunvn/kaapi-store/internal/repository"
	"github.com/arjunvn/kaapi-store/internal/service"
	"github.com/arjunvn/kaapi-store/internal/token"
)

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	RegisterUser(ctx context.Context, firstName, lastName, username, email, password string) error
	AuthenticateUser(ctx context.Context, identifier, password string) (string, error)
	ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error
	GetAccount(ctx context.Context, username string) (*model.Account, error)
	AddAddress(ctx context.Context, a *model.Address) (*model.Address, error)
	UpdateAddress(ctx context.Context, a *model.Address) (*model.Address, error)
	DeleteAddress(ctx context.Context, addressID int64, username string) error
	ListReviews(ctx context.Context) ([]model.Review, error)
	AddReview(ctx context.Context, username string, rating int, comment string) (*model.Review, error)
	UpdateReview(ctx context.Context, username string, reviewID int64, rating int, comment string) (*model.Review, error)
	DeleteReview(ctx context.Context, reviewID int64, username string) error
	SubscriptionStatus(ctx context.Context, username string) (bool, error)
	Subscribe(ctx context.Context, username, email string) error
	GetCart(ctx context.Context, username string) ([]model.OrderItem, error)
	SaveCart(ctx context.Context, username string, items []model.OrderItem) error
	Checkout(ctx context.Context, username string, items []model.OrderItem, declaredTotal float64, shipping model.ShippingAddress) (*service.CheckoutResult, error)
	VerifyPayment(ctx context.Context, username string, orderID int64, providerOrderID, providerPaymentID, signature string) (*service.VerificationResult, error)
	GetOrder(ctx context.Context, orderID int64, username string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, username string) ([]model.Order, error)
}

// Handler implements the HTTP handlers of the storefront API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	tokens         *token.Manager
	authMiddleware *middleware.AuthMiddleware
	corsOrigin     string
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger, tokens *token.Manager, auth *middleware.AuthMiddleware, corsOrigin string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		tokens:         tokens,
		authMiddleware: auth,
		corsOrigin:     corsOrigin,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"message": message})
}

func respondFailure(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"message": message, "success": false})
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	h.logger.Error(msg, append(fields, zap.Error(err))...)
	respondFailure(w, http.StatusInternalServerError, "Server error")
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register handles new user registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.FirstName == "" || req.LastName == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		respondMessage(w, http.StatusBadRequest, "All fields are required")
		return
	}

	err := h.service.RegisterUser(r.Context(), req.FirstName, req.LastName, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			respondFailure(w, http.StatusConflict, "Username or email already exists")
			return
		}
		h.serverError(w, "register user error", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "User registered successfully",
		"success": true,
	})
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// Login authenticates a user and issues a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UsernameOrEmail == "" || req.Password == "" {
		respondMessage(w, http.StatusBadRequest, "Username/email and password required")
		return
	}

	username, err := h.service.AuthenticateUser(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			respondMessage(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.serverError(w, "login error", err)
		return
	}

	accessToken, err := h.tokens.Issue(username)
	if err != nil {
		h.serverError(w, "issue token error", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"accessToken": accessToken,
		"message":     "Login successful",
	})
}

// Protected is a token smoke endpoint echoing the authenticated user.
func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Protected content",
		"user":    map[string]string{"username": username},
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword replaces the caller's password after re-checking the
// current one.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		respondMessage(w, http.StatusBadRequest, "Current and new password required")
		return
	}

	err := h.service.ChangePassword(r.Context(), username, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondMessage(w, http.StatusBadRequest, "Current password is incorrect")
		case errors.Is(err, repository.ErrUserNotFound):
			respondMessage(w, http.StatusNotFound, "User not found")
		default:
			h.serverError(w, "change password error", err, zap.String("username", username))
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password changed successfully",
	})
}

type addressPayload struct {
	Label      string `json:"label"`
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type addressResponse struct {
	ID         int64  `json:"id"`
	Label      string `json:"label"`
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toAddressResponse(a *model.Address) addressResponse {
	return addressResponse{
		ID:         a.ID,
		Label:      a.Label,
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

// GetAccount returns the account page data for the caller.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	account, err := h.service.GetAccount(r.Context(), username)
	if err != nil {
		h.serverError(w, "get account error", err, zap.String("username", username))
		return
	}

	addresses := make([]addressResponse, 0, len(account.Addresses))
	for i := range account.Addresses {
		addresses = append(addresses, toAddressResponse(&account.Addresses[i]))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"username":     account.Username,
		"addresses":    addresses,
		"isSubscribed": account.IsSubscribed,
	})
}

// AddAddress saves a new address-book entry for the caller.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req addressPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	address, err := h.service.AddAddress(r.Context(), &model.Address{
		Username:   username,
		Label:      req.Label,
		FullName:   req.FullName,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
	})
	if err != nil {
		h.serverError(w, "add address error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"address": toAddressResponse(address),
	})
}

// UpdateAddress updates an address-book entry owned by the caller.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid address id")
		return
	}

	var req addressPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	address, err := h.service.UpdateAddress(r.Context(), &model.Address{
		ID:         id,
		Username:   username,
		Label:      req.Label,
		FullName:   req.FullName,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			respondMessage(w, http.StatusNotFound, "Address not found")
			return
		}
		h.serverError(w, "update address error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"address": toAddressResponse(address),
	})
}

// DeleteAddress removes an address-book entry owned by the caller.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid address id")
		return
	}

	if err := h.service.DeleteAddress(r.Context(), id, username); err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			respondMessage(w, http.StatusNotFound, "Address not found")
			return
		}
		h.serverError(w, "delete address error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SubscriptionStatus reports whether the caller subscribed to the newsletter.
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	subscribed, err := h.service.SubscriptionStatus(r.Context(), username)
	if err != nil {
		h.serverError(w, "subscription status error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"isSubscribed": subscribed})
}

type subscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe records a newsletter subscription for the caller.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" {
		respondMessage(w, http.StatusBadRequest, "Email required")
		return
	}

	if err := h.service.Subscribe(r.Context(), username, req.Email); err != nil {
		h.serverError(w, "subscribe error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Successfully subscribed to newsletter",
	})
}

type reviewResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
	IsOwner   bool   `json:"isOwner"`
}

func toReviewResponse(rev *model.Review, viewer middleware.Identity) reviewResponse {
	return reviewResponse{
		ID:        rev.ID,
		Username:  rev.Username,
		Rating:    rev.Rating,
		Comment:   rev.Comment,
		CreatedAt: rev.CreatedAt.Format(time.RFC3339),
		IsOwner:   viewer.Authenticated && viewer.Username == rev.Username,
	}
}

// ListReviews returns all reviews. Ownership flags are filled in when the
// caller presented a valid token; anonymous callers get isOwner false.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.IdentityFromContext(r.Context())

	reviews, err := h.service.ListReviews(r.Context())
	if err != nil {
		h.serverError(w, "list reviews error", err)
		return
	}

	resp := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		resp = append(resp, toReviewResponse(&reviews[i], viewer))
	}

	respondJSON(w, http.StatusOK, resp)
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// AddReview creates a review by the caller.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	review, err := h.service.AddReview(r.Context(), username, req.Rating, req.Comment)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRating) {
			respondMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serverError(w, "add review error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"review":  toReviewResponse(review, middleware.Identity{Username: username, Authenticated: true}),
	})
}

// UpdateReview updates a review owned by the caller.
func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid review id")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	review, err := h.service.UpdateReview(r.Context(), username, id, req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRating):
			respondMessage(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrReviewNotFound):
			respondMessage(w, http.StatusNotFound, "Review not found")
		default:
			h.serverError(w, "update review error", err, zap.String("username", username))
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"review":  toReviewResponse(review, middleware.Identity{Username: username, Authenticated: true}),
	})
}

// DeleteReview removes a review owned by the caller.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid review id")
		return
	}

	if err := h.service.DeleteReview(r.Context(), id, username); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			respondMessage(w, http.StatusNotFound, "Review not found")
			return
		}
		h.serverError(w, "delete review error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GetCart returns the caller's persisted cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	items, err := h.service.GetCart(r.Context(), username)
	if err != nil {
		h.serverError(w, "get cart error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"cart": items})
}

type saveCartRequest struct {
	Cart []cartItemRequest `json:"cart"`
}

// SaveCart replaces the caller's persisted cart.
func (h *Handler) SaveCart(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req saveCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.SaveCart(r.Context(), username, sanitizeCart(req.Cart)); err != nil {
		h.serverError(w, "save cart error", err, zap.String("username", username))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
