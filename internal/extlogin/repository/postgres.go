package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/platformplatform/identity-core/internal/extlogin/domain"
)

// PostgresRepository persists correlations in Postgres. TryConsume runs as a
// single auto-commit statement so concurrent callbacks resolve to exactly
// one winner.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a correlation repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const correlationColumns = `id, provider, flow_type, code_verifier, nonce, fingerprint_hash, tenant_id, consumed, result, created_at`

// Create persists a new pending correlation.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Correlation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_correlations (`+correlationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Provider, string(c.FlowType), c.CodeVerifier, c.Nonce,
		c.FingerprintHash, nullableString(c.TenantID), c.Consumed,
		nullableString(c.Result), c.CreatedAt,
	)
	return err
}

// GetByID returns the correlation for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Correlation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+correlationColumns+` FROM login_correlations WHERE id = $1`, id)

	var (
		c        domain.Correlation
		flow     string
		tenantID sql.NullString
		result   sql.NullString
	)
	err := row.Scan(&c.ID, &c.Provider, &flow, &c.CodeVerifier, &c.Nonce,
		&c.FingerprintHash, &tenantID, &c.Consumed, &result, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.FlowType = domain.FlowType(flow)
	c.TenantID = tenantID.String
	c.Result = result.String
	return &c, nil
}

// TryConsume marks the record consumed with the terminal result; only the
// first writer commits.
func (r *PostgresRepository) TryConsume(ctx context.Context, id string, result domain.Outcome) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE login_correlations
		SET consumed = TRUE, result = $1
		WHERE id = $2 AND NOT consumed`,
		string(result), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
