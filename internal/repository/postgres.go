// Package repository contains the PostgreSQL data access layer.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/arjunvn/kaapi-store/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists is returned when the username or email is already taken.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no user matches the identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound is returned when the order is absent or owned by someone else.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAddressNotFound is returned when the address is absent or owned by someone else.
	ErrAddressNotFound = errors.New("address not found")
	// ErrReviewNotFound is returned when the review is absent or owned by someone else.
	ErrReviewNotFound = errors.New("review not found")
)

// PostgresRepository provides access to the storefront data in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the repository and brings the schema up to
// date through versioned migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry re-runs fn on serialization failures, deadlocks and transient
// connection errors. Reads only; writes are not safe to blindly repeat.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser inserts a new user.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, first_name, last_name, password_hash)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Username)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByIdentifier looks a user up by username or email.
func (r *PostgresRepository) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, email, first_name, last_name, password_hash, created_at
		 FROM users
		 WHERE username = $1 OR email = $1`,
		identifier,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// UpdatePassword replaces the stored password hash for a user.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, username string, passwordHash []byte) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE username = $1`,
		username, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateOrder inserts a new order and returns its id.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return 0, fmt.Errorf("marshal order items: %w", err)
	}
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return 0, fmt.Errorf("marshal shipping address: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO orders (username, order_data, shipping_address, total_paise, payment_status, payment_provider)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		o.Username, items, shipping, o.TotalPaise, string(o.PaymentStatus), string(o.PaymentProvider),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

// SetProviderOrderID records the gateway's payment intent id on the order.
func (r *PostgresRepository) SetProviderOrderID(ctx context.Context, orderID int64, providerOrderID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET provider_order_id = $2 WHERE id = $1`,
		orderID, providerOrderID,
	)
	if err != nil {
		return fmt.Errorf("set provider order id: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOrder returns the order with the given id if it is owned by username.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID int64, username string) (*model.Order, error) {
	var o *model.Order

	err := r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT id, username, order_data, shipping_address, total_paise, payment_status,
			        payment_provider, COALESCE(provider_order_id, ''), COALESCE(provider_payment_id, ''), created_at
			 FROM orders
			 WHERE id = $1 AND username = $2`,
			orderID, username,
		)

		order, err := scanOrder(row)
		if err != nil {
			return err
		}
		o = order
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// GetOrdersByUser returns the user's orders, newest first.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, username string) ([]model.Order, error) {
	var orders []model.Order

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, username, order_data, shipping_address, total_paise, payment_status,
			        payment_provider, COALESCE(provider_order_id, ''), COALESCE(provider_payment_id, ''), created_at
			 FROM orders
			 WHERE username = $1
			 ORDER BY created_at DESC`,
			username,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return err
			}
			orders = append(orders, *o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}

	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o        model.Order
		items    []byte
		shipping []byte
		status   string
		provider string
	)

	if err := row.Scan(&o.ID, &o.Username, &items, &shipping, &o.TotalPaise, &status,
		&provider, &o.ProviderOrderID, &o.ProviderPaymentID, &o.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}

	o.PaymentStatus = model.PaymentStatus(status)
	o.PaymentProvider = model.PaymentProvider(provider)

	return &o, nil
}

// SettlePayment moves an order still awaiting payment into a terminal status
// and records the provider payment id. The conditional update serializes
// concurrent verification attempts: once an order is completed or failed the
// row no longer matches and the call reports no transition.
func (r *PostgresRepository) SettlePayment(ctx context.Context, orderID int64, username string, status model.PaymentStatus, providerPaymentID string) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET payment_status = $3, provider_payment_id = $4
		 WHERE id = $1 AND username = $2 AND payment_status = $5`,
		orderID, username, string(status), providerPaymentID, string(model.PaymentStatusPendingPayment),
	)
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// GetAddressesByUser returns the user's saved addresses, newest first.
func (r *PostgresRepository) GetAddressesByUser(ctx context.Context, username string) ([]model.Address, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, label, full_name, line1, line2, city, state, postal_code, country, phone, created_at
		 FROM addresses
		 WHERE username = $1
		 ORDER BY created_at DESC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("select addresses: %w", err)
	}
	defer rows.Close()

	var res []model.Address
	for rows.Next() {
		var a model.Address
		if err := rows.Scan(&a.ID, &a.Username, &a.Label, &a.FullName, &a.Line1, &a.Line2,
			&a.City, &a.State, &a.PostalCode, &a.Country, &a.Phone, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateAddress inserts an address-book entry and returns it with its id.
func (r *PostgresRepository) CreateAddress(ctx context.Context, a *model.Address) (*model.Address, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO addresses (username, label, full_name, line1, line2, city, state, postal_code, country, phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		a.Username, a.Label, a.FullName, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.Phone,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return a, nil
}

// UpdateAddress updates an address owned by the user.
func (r *PostgresRepository) UpdateAddress(ctx context.Context, a *model.Address) (*model.Address, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE addresses
		 SET label = $3, full_name = $4, line1 = $5, line2 = $6, city = $7, state = $8,
		     postal_code = $9, country = $10, phone = $11
		 WHERE id = $1 AND username = $2
		 RETURNING created_at`,
		a.ID, a.Username, a.Label, a.FullName, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.Phone,
	)

	if err := row.Scan(&a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("update address: %w", err)
	}
	return a, nil
}

// DeleteAddress removes an address owned by the user.
func (r *PostgresRepository) DeleteAddress(ctx context.Context, addressID int64, username string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM addresses WHERE id = $1 AND username = $2`,
		addressID, username,
	)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAddressNotFound
	}
	return nil
}

// GetReviews returns all reviews, newest first.
func (r *PostgresRepository) GetReviews(ctx context.Context) ([]model.Review, error) {
	var res []model.Review

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, username, rating, comment, created_at
			 FROM reviews
			 ORDER BY created_at DESC`,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var rev model.Review
			if err := rows.Scan(&rev.ID, &rev.Username, &rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
				return err
			}
			res = append(res, rev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}

	return res, nil
}

// CreateReview inserts a review and returns it with its id.
func (r *PostgresRepository) CreateReview(ctx context.Context, rev *model.Review) (*model.Review, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (username, rating, comment) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		rev.Username, rev.Rating, rev.Comment,
	).Scan(&rev.ID, &rev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	return rev, nil
}

// UpdateReview updates a review owned by the user.
func (r *PostgresRepository) UpdateReview(ctx context.Context, rev *model.Review) (*model.Review, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE reviews SET rating = $3, comment = $4
		 WHERE id = $1 AND username = $2
		 RETURNING created_at`,
		rev.ID, rev.Username, rev.Rating, rev.Comment,
	)

	if err := row.Scan(&rev.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("update review: %w", err)
	}
	return rev, nil
}

// DeleteReview removes a review owned by the user.
func (r *PostgresRepository) DeleteReview(ctx context.Context, reviewID int64, username string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM reviews WHERE id = $1 AND username = $2`,
		reviewID, username,
	)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// IsSubscribed reports whether the user has a newsletter subscription.
func (r *PostgresRepository) IsSubscribed(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_subscriptions WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return exists, nil
}

// UpsertSubscription records or refreshes the user's newsletter subscription.
func (r *PostgresRepository) UpsertSubscription(ctx context.Context, username, email string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO email_subscriptions (username, email) VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET email = EXCLUDED.email`,
		username, email,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetCart returns the user's persisted cart, or an empty cart if none is saved.
func (r *PostgresRepository) GetCart(ctx context.Context, username string) ([]model.OrderItem, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT items FROM carts WHERE username = $1`,
		username,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []model.OrderItem{}, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	var items []model.OrderItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return items, nil
}

// SaveCart replaces the user's persisted cart.
func (r *PostgresRepository) SaveCart(ctx context.Context, username string, items []model.OrderItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO carts (username, items, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (username) DO UPDATE SET items = EXCLUDED.items, updated_at = NOW()`,
		username, raw,
	)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// ClearCart removes the user's persisted cart.
func (r *PostgresRepository) ClearCart(ctx context.Context, username string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM carts WHERE username = $1`,
		username,
	)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
