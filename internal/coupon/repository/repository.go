package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/shopmesh/shopmesh/internal/coupon/domain"
)

var (
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrDuplicateCoupon = errors.New("coupon code already exists")
)

// CouponRepository is what the HTTP layer needs from coupon storage.
type CouponRepository interface {
	GetAll(ctx context.Context) ([]*domain.Coupon, error)
	GetByID(ctx context.Context, id int64) (*domain.Coupon, error)
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	Create(ctx context.Context, c *domain.Coupon) error
	Update(ctx context.Context, c *domain.Coupon) error
	Delete(ctx context.Context, id int64) error
	Close() error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) GetAll(ctx context.Context) ([]*domain.Coupon, error) {
	query := `SELECT id, code, discount_amount, min_amount FROM coupons ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*domain.Coupon
	for rows.Next() {
		c := &domain.Coupon{}
		if err := rows.Scan(&c.ID, &c.Code, &c.DiscountAmount, &c.MinAmount); err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return coupons, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	return r.getOne(ctx, `SELECT id, code, discount_amount, min_amount FROM coupons WHERE id = ?`, id)
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return r.getOne(ctx, `SELECT id, code, discount_amount, min_amount FROM coupons WHERE LOWER(code) = LOWER(?)`, code)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*domain.Coupon, error) {
	c := &domain.Coupon{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.Code, &c.DiscountAmount, &c.MinAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan coupon: %w", err)
	}
	return c, nil
}

func (r *Repository) Create(ctx context.Context, c *domain.Coupon) error {
	query := `INSERT INTO coupons (code, discount_amount, min_amount) VALUES (?, ?, ?) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, c.Code, c.DiscountAmount, c.MinAmount).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCoupon
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, c *domain.Coupon) error {
	query := `UPDATE coupons SET code = ?, discount_amount = ?, min_amount = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, c.Code, c.DiscountAmount, c.MinAmount, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCoupon
		}
		return fmt.Errorf("update coupon: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCouponNotFound
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCouponNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *Repository) Close() error {
	return r.db.Close()
}
