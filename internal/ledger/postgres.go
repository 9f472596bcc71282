package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
)

const (
	defaultMaxOpenConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second

	// uniqueViolation is the postgres error code raised by the post_url
	// unique index.
	uniqueViolation = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS promocodes (
	id SERIAL PRIMARY KEY,
	code TEXT NOT NULL,
	post_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS promocodes_post_url_idx ON promocodes (post_url);
`

// Postgres is the sqlx-backed ledger.
type Postgres struct {
	db  *sqlx.DB
	log logger.Interface
}

// Open connects to the database named by the URL and ensures the schema
// exists.
func Open(ctx context.Context, databaseURL string, log logger.Interface) (*Postgres, error) {
	dsn, err := ParseDSN(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	ledger := New(db, log)
	if schemaErr := ledger.ensureSchema(ctx); schemaErr != nil {
		db.Close()
		return nil, schemaErr
	}
	return ledger, nil
}

// New wraps an existing connection pool. Schema management is the caller's
// concern; tests use this with sqlmock.
func New(db *sqlx.DB, log logger.Interface) *Postgres {
	return &Postgres{db: db, log: log.WithComponent("ledger")}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}

// ExistsByPostURL reports whether the post URL has been handled.
func (p *Postgres) ExistsByPostURL(ctx context.Context, postURL string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM promocodes WHERE post_url = $1)`
	if err := p.db.GetContext(ctx, &exists, query, postURL); err != nil {
		return false, fmt.Errorf("failed to check ledger for %s: %w", postURL, err)
	}
	return exists, nil
}

// Create records a handled promocode.
func (p *Postgres) Create(ctx context.Context, code *domain.Promocode) error {
	query := `
		INSERT INTO promocodes (code, post_url)
		VALUES ($1, $2)
		RETURNING created_at
	`
	err := p.db.QueryRowxContext(ctx, query, code.Code, code.PostURL).Scan(&code.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to record promocode: %w", err)
	}

	p.log.Info("promocode recorded", "code", code.Code, "post_url", code.PostURL)
	return nil
}

// Recent returns the most recently recorded promocodes, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]domain.Promocode, error) {
	codes := []domain.Promocode{}
	query := `
		SELECT code, post_url, created_at
		FROM promocodes
		ORDER BY created_at DESC
		LIMIT $1
	`
	if err := p.db.SelectContext(ctx, &codes, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list promocodes: %w", err)
	}
	return codes, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

var _ Interface = (*Postgres)(nil)
