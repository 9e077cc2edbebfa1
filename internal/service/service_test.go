package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/arjunvn/kaapi-store/internal/model"
	"github.com/arjunvn/kaapi-store/internal/repository"
)

// stubRepo is an in-memory Repository used across the service tests.
type stubRepo struct {
	users  map[string]*model.User
	orders map[int64]*model.Order
	nextID int64

	createOrderErr error
	setProviderErr error

	cartClears int
	savedCart  []model.OrderItem

	reviews []model.Review
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:  make(map[string]*model.User),
		orders: make(map[int64]*model.Order),
	}
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	if _, ok := s.users[u.Username]; ok {
		return 0, repository.ErrUserExists
	}
	s.nextID++
	u.ID = s.nextID
	s.users[u.Username] = u
	return u.ID, nil
}

func (s *stubRepo) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	if u, ok := s.users[identifier]; ok {
		return u, nil
	}
	for _, u := range s.users {
		if u.Email == identifier {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) UpdatePassword(ctx context.Context, username string, passwordHash []byte) error {
	u, ok := s.users[username]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	if s.createOrderErr != nil {
		return 0, s.createOrderErr
	}
	s.nextID++
	stored := *o
	stored.ID = s.nextID
	s.orders[stored.ID] = &stored
	return stored.ID, nil
}

func (s *stubRepo) SetProviderOrderID(ctx context.Context, orderID int64, providerOrderID string) error {
	if s.setProviderErr != nil {
		return s.setProviderErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.ProviderOrderID = providerOrderID
	return nil
}

func (s *stubRepo) GetOrder(ctx context.Context, orderID int64, username string) (*model.Order, error) {
	o, ok := s.orders[orderID]
	if !ok || o.Username != username {
		return nil, repository.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, username string) ([]model.Order, error) {
	var res []model.Order
	for _, o := range s.orders {
		if o.Username == username {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (s *stubRepo) SettlePayment(ctx context.Context, orderID int64, username string, status model.PaymentStatus, providerPaymentID string) (bool, error) {
	o, ok := s.orders[orderID]
	if !ok || o.Username != username || o.PaymentStatus != model.PaymentStatusPendingPayment {
		return false, nil
	}
	o.PaymentStatus = status
	o.ProviderPaymentID = providerPaymentID
	return true, nil
}

func (s *stubRepo) GetAddressesByUser(ctx context.Context, username string) ([]model.Address, error) {
	return nil, nil
}

func (s *stubRepo) CreateAddress(ctx context.Context, a *model.Address) (*model.Address, error) {
	s.nextID++
	a.ID = s.nextID
	return a, nil
}

func (s *stubRepo) UpdateAddress(ctx context.Context, a *model.Address) (*model.Address, error) {
	return a, nil
}

func (s *stubRepo) DeleteAddress(ctx context.Context, addressID int64, username string) error {
	return nil
}

func (s *stubRepo) GetReviews(ctx context.Context) ([]model.Review, error) {
	return s.reviews, nil
}

func (s *stubRepo) CreateReview(ctx context.Context, rev *model.Review) (*model.Review, error) {
	s.nextID++
	rev.ID = s.nextID
	s.reviews = append(s.reviews, *rev)
	return rev, nil
}

func (s *stubRepo) UpdateReview(ctx context.Context, rev *model.Review) (*model.Review, error) {
	return rev, nil
}

func (s *stubRepo) DeleteReview(ctx context.Context, reviewID int64, username string) error {
	return nil
}

func (s *stubRepo) IsSubscribed(ctx context.Context, username string) (bool, error) {
	return false, nil
}

func (s *stubRepo) UpsertSubscription(ctx context.Context, username, email string) error {
	return nil
}

func (s *stubRepo) GetCart(ctx context.Context, username string) ([]model.OrderItem, error) {
	return s.savedCart, nil
}

func (s *stubRepo) SaveCart(ctx context.Context, username string, items []model.OrderItem) error {
	s.savedCart = items
	return nil
}

func (s *stubRepo) ClearCart(ctx context.Context, username string) error {
	s.cartClears++
	s.savedCart = nil
	return nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	err := svc.RegisterUser(context.Background(), "Madhuri", "Rao", "madhuri", "madhuri@example.com", "filterkaapi")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	username, err := svc.AuthenticateUser(context.Background(), "madhuri", "filterkaapi")
	if err != nil {
		t.Fatalf("authenticate by username: %v", err)
	}
	if username != "madhuri" {
		t.Fatalf("username = %q, want madhuri", username)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "madhuri@example.com", "filterkaapi"); err != nil {
		t.Fatalf("authenticate by email: %v", err)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "madhuri", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	if err := svc.RegisterUser(context.Background(), "A", "B", "dup", "dup@example.com", "pass"); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := svc.RegisterUser(context.Background(), "A", "B", "dup", "dup@example.com", "pass")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)

	if err := svc.RegisterUser(context.Background(), "A", "B", "madhuri", "m@example.com", "old-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), "madhuri", "wrong", "new-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), "madhuri", "old-pass", "new-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	u := repo.users["madhuri"]
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("new-pass")); err != nil {
		t.Fatalf("new password hash does not verify: %v", err)
	}
}

func TestAddReview_RatingValidation(t *testing.T) {
	svc := NewService(newStubRepo(), nil)

	if _, err := svc.AddReview(context.Background(), "madhuri", 0, "meh"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating for 0, got %v", err)
	}
	if _, err := svc.AddReview(context.Background(), "madhuri", 6, "wow"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating for 6, got %v", err)
	}
	if _, err := svc.AddReview(context.Background(), "madhuri", 5, "excellent brew"); err != nil {
		t.Fatalf("valid review: %v", err)
	}
}
