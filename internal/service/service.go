// Package service implements the business logic of the storefront backend.
package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/arjunvn/kaapi-store/internal/model"
)

const bcryptCost = 10

// ErrInvalidCredentials is returned when the password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidRating is returned for a review rating outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	UpdatePassword(ctx context.Context, username string, passwordHash []byte) error
	CreateOrder(ctx context.Context, o *model.Order) (int64, error)
	SetProviderOrderID(ctx context.Context, orderID int64, providerOrderID string) error
	GetOrder(ctx context.Context, orderID int64, username string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, username string) ([]model.Order, error)
	SettlePayment(ctx context.Context, orderID int64, username string, status model.PaymentStatus, providerPaymentID string) (bool, error)
	GetAddressesByUser(ctx context.Context, username string) ([]model.Address, error)
	CreateAddress(ctx context.Context, a *model.Address) (*model.Address, error)
	UpdateAddress(ctx context.Context, a *model.Address) (*model.Address, error)
	DeleteAddress(ctx context.Context, addressID int64, username string) error
	GetReviews(ctx context.Context) ([]model.Review, error)
	CreateReview(ctx context.Context, rev *model.Review) (*model.Review, error)
	UpdateReview(ctx context.Context, rev *model.Review) (*model.Review, error)
	DeleteReview(ctx context.Context, reviewID int64, username string) error
	IsSubscribed(ctx context.Context, username string) (bool, error)
	UpsertSubscription(ctx context.Context, username, email string) error
	GetCart(ctx context.Context, username string) ([]model.OrderItem, error)
	SaveCart(ctx context.Context, username string, items []model.OrderItem) error
	ClearCart(ctx context.Context, username string) error
}

// Service holds the business logic of the storefront backend.
type Service struct {
	repo    Repository
	gateway PaymentGateway
}

// NewService creates a service. A nil gateway activates the simulation
// checkout path.
func NewService(repo Repository, gateway PaymentGateway) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
	}
}

// Close releases the service resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser creates a new user with a bcrypt-hashed password.
func (s *Service) RegisterUser(ctx context.Context, firstName, lastName, username, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.repo.CreateUser(ctx, &model.User{
		Username:     username,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
	})
	return err
}

// AuthenticateUser checks the password for a username or email and returns
// the canonical username.
func (s *Service) AuthenticateUser(ctx context.Context, identifier, password string) (string, error) {
	u, err := s.repo.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return u.Username, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	u, err := s.repo.GetUserByIdentifier(ctx, username)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.repo.UpdatePassword(ctx, username, hash)
}

// GetAccount returns the account page aggregate for a user.
func (s *Service) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	addresses, err := s.repo.GetAddressesByUser(ctx, username)
	if err != nil {
		return nil, err
	}

	subscribed, err := s.repo.IsSubscribed(ctx, username)
	if err != nil {
		return nil, err
	}

	return &model.Account{
		Username:     username,
		Addresses:    addresses,
		IsSubscribed: subscribed,
	}, nil
}

// AddAddress saves a new address-book entry for the user.
func (s *Service) AddAddress(ctx context.Context, a *model.Address) (*model.Address, error) {
	return s.repo.CreateAddress(ctx, a)
}

// UpdateAddress updates an address owned by the user.
func (s *Service) UpdateAddress(ctx context.Context, a *model.Address) (*model.Address, error) {
	return s.repo.UpdateAddress(ctx, a)
}

// DeleteAddress removes an address owned by the user.
func (s *Service) DeleteAddress(ctx context.Context, addressID int64, username string) error {
	return s.repo.DeleteAddress(ctx, addressID, username)
}

// ListReviews returns all reviews, newest first.
func (s *Service) ListReviews(ctx context.Context) ([]model.Review, error) {
	return s.repo.GetReviews(ctx)
}

// AddReview creates a review for the user.
func (s *Service) AddReview(ctx context.Context, username string, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	return s.repo.CreateReview(ctx, &model.Review{
		Username: username,
		Rating:   rating,
		Comment:  comment,
	})
}

// UpdateReview updates a review owned by the user.
func (s *Service) UpdateReview(ctx context.Context, username string, reviewID int64, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	return s.repo.UpdateReview(ctx, &model.Review{
		ID:       reviewID,
		Username: username,
		Rating:   rating,
		Comment:  comment,
	})
}

// DeleteReview removes a review owned by the user.
func (s *Service) DeleteReview(ctx context.Context, reviewID int64, username string) error {
	return s.repo.DeleteReview(ctx, reviewID, username)
}

// SubscriptionStatus reports whether the user is subscribed to the newsletter.
func (s *Service) SubscriptionStatus(ctx context.Context, username string) (bool, error) {
	return s.repo.IsSubscribed(ctx, username)
}

// Subscribe records a newsletter subscription for the user.
func (s *Service) Subscribe(ctx context.Context, username, email string) error {
	return s.repo.UpsertSubscription(ctx, username, email)
}

// GetCart returns the user's persisted cart.
func (s *Service) GetCart(ctx context.Context, username string) ([]model.OrderItem, error) {
	return s.repo.GetCart(ctx, username)
}

// SaveCart replaces the user's persisted cart.
func (s *Service) SaveCart(ctx context.Context, username string, items []model.OrderItem) error {
	return s.repo.SaveCart(ctx, username, items)
}

// GetOrder returns the order if it is owned by the user.
func (s *Service) GetOrder(ctx context.Context, orderID int64, username string) (*model.Order, error) {
	return s.repo.GetOrder(ctx, orderID, username)
}

// GetOrdersByUser returns the user's order history, newest first.
func (s *Service) GetOrdersByUser(ctx context.Context, username string) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, username)
}
