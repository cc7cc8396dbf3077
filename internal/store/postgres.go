package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"catalog-browse-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound = errors.New("store: product not found")
	ErrInvalidProduct  = errors.New("store: product violates a table constraint")
)

const productColumns = `id, name, price, sale_price, rating, reviews_count, image_id, brand, category`

// PostgresStore implements ProductStorer on PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: connect to postgres")
	}
	return NewPostgresStore(db), nil
}

// DB exposes the underlying handle, e.g. for migrations.
func (s *PostgresStore) DB() *sql.DB {
	return s.db.DB
}

// ListAllProducts returns every product in insertion order.
func (s *PostgresStore) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM catalog.products ORDER BY seq ASC;`

	products := []domain.Product{}
	if err := s.db.SelectContext(ctx, &products, query); err != nil {
		return nil, errors.Wrap(err, "store: ListAllProducts failed to query products")
	}
	return products, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM catalog.products WHERE id = $1;`

	var product domain.Product
	if err := s.db.GetContext(ctx, &product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, errors.Wrap(err, "store: GetProductByID failed to scan row")
	}
	return &product, nil
}

// UpsertProducts writes products in one transaction. Existing ids keep their
// position in insertion order; every other column is replaced.
func (s *PostgresStore) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO catalog.products (` + productColumns + `)
		VALUES (:id, :name, :price, :sale_price, :rating, :reviews_count, :image_id, :brand, :category)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, sale_price = EXCLUDED.sale_price,
			rating = EXCLUDED.rating, reviews_count = EXCLUDED.reviews_count,
			image_id = EXCLUDED.image_id, brand = EXCLUDED.brand, category = EXCLUDED.category;
	`
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "store: UpsertProducts failed to begin transaction")
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	for _, p := range products {
		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23514" { // check_violation
				return 0, errors.Wrapf(ErrInvalidProduct, "product %d: %s", p.ID, pqErr.Message)
			}
			return 0, errors.Wrapf(err, "store: UpsertProducts failed for product %d", p.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "store: UpsertProducts failed to commit")
	}
	return len(products), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		log.Info("Closing database connection pool...")
		if err := s.db.Close(); err != nil {
			log.WithError(err).Error("Failed to close database connection pool")
			return err
		}
		log.Info("Database connection pool closed successfully.")
	}
	return nil
}
