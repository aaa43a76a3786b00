package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/shopmesh/shopmesh/internal/cart/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresRepository) GetHeaderByUserID(ctx context.Context, userID string) (*domain.CartHeader, error) {
	query := `SELECT id, user_id, coupon_code FROM cart_headers WHERE user_id = $1`

	var header domain.CartHeader
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&header.ID,
		&header.UserID,
		&header.CouponCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart header: %w", err)
	}

	return &header, nil
}

func (r *PostgresRepository) GetDetails(ctx context.Context, headerID int64) ([]domain.CartDetail, error) {
	query := `SELECT id, cart_header_id, product_id, quantity
	          FROM cart_details WHERE cart_header_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, headerID)
	if err != nil {
		return nil, fmt.Errorf("query cart details: %w", err)
	}
	defer rows.Close()

	var details []domain.CartDetail
	for rows.Next() {
		var d domain.CartDetail
		if err := rows.Scan(&d.ID, &d.CartHeaderID, &d.ProductID, &d.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart detail: %w", err)
		}
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return details, nil
}

// UpsertItem runs the whole create-or-merge state machine in one
// transaction. The header is created or locked through a single
// INSERT ... ON CONFLICT DO UPDATE against the unique user_id index:
// an existing row gets row-locked, and a missing one is inserted with
// the second writer blocking on the first, so two first-time upserts
// for the same user can never mint two headers. Holding that lock
// closes the lost-update window on the additive merge, and creating
// header and detail inside the same transaction means a crash can
// never leave an empty header behind.
func (r *PostgresRepository) UpsertItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.CartHeader, *domain.CartDetail, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	header := domain.CartHeader{UserID: userID}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO cart_headers (user_id, coupon_code) VALUES ($1, '')
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id, coupon_code`,
		userID,
	).Scan(&header.ID, &header.CouponCode)
	if err != nil {
		return nil, nil, fmt.Errorf("lock cart header: %w", err)
	}

	var detail domain.CartDetail
	err = tx.QueryRowContext(ctx,
		`SELECT id, cart_header_id, product_id, quantity
		 FROM cart_details WHERE cart_header_id = $1 AND product_id = $2 FOR UPDATE`,
		header.ID, productID,
	).Scan(&detail.ID, &detail.CartHeaderID, &detail.ProductID, &detail.Quantity)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		detail, err = insertDetail(ctx, tx, header.ID, productID, quantity)
		if err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, fmt.Errorf("lock cart detail: %w", err)
	default:
		// additive merge: the request carries a quantity to add
		if e2 := tx.QueryRowContext(ctx,
			`UPDATE cart_details SET quantity = quantity + $1 WHERE id = $2 RETURNING quantity`,
			quantity, detail.ID,
		).Scan(&detail.Quantity); e2 != nil {
			return nil, nil, fmt.Errorf("update cart detail quantity: %w", e2)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit upsert: %w", err)
	}

	return &header, &detail, nil
}

func insertDetail(ctx context.Context, tx *sql.Tx, headerID, productID int64, quantity int) (domain.CartDetail, error) {
	detail := domain.CartDetail{
		CartHeaderID: headerID,
		ProductID:    productID,
		Quantity:     quantity,
	}
	err := tx.QueryRowContext(ctx,
		`INSERT INTO cart_details (cart_header_id, product_id, quantity)
		 VALUES ($1, $2, $3) RETURNING id`,
		headerID, productID, quantity,
	).Scan(&detail.ID)
	if err != nil {
		return domain.CartDetail{}, fmt.Errorf("insert cart detail: %w", err)
	}
	return detail, nil
}

// RemoveDetail deletes one line and, when it was the last one, its
// header. Both deletes commit together.
func (r *PostgresRepository) RemoveDetail(ctx context.Context, detailID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var headerID int64
	err = tx.QueryRowContext(ctx,
		`SELECT cart_header_id FROM cart_details WHERE id = $1 FOR UPDATE`,
		detailID,
	).Scan(&headerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("lock cart detail: %w", err)
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cart_details WHERE cart_header_id = $1`,
		headerID,
	).Scan(&remaining); err != nil {
		return fmt.Errorf("count cart details: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_details WHERE id = $1`, detailID); err != nil {
		return fmt.Errorf("delete cart detail: %w", err)
	}

	if remaining == 1 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cart_headers WHERE id = $1`, headerID); err != nil {
			return fmt.Errorf("delete cart header: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}

	return nil
}

func (r *PostgresRepository) SetCouponCode(ctx context.Context, userID, couponCode string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_headers SET coupon_code = $1 WHERE user_id = $2`,
		couponCode, userID,
	)
	if err != nil {
		return fmt.Errorf("update coupon code: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
