package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/platformplatform/identity-core/internal/verification/domain"
)

// PostgresRepository persists verification records in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a verification repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const verificationColumns = `id, flow_type, email, code_hash, purpose, retry_count, resend_count, completed, created_at, modified_at`

// Create persists a new verification record.
func (r *PostgresRepository) Create(ctx context.Context, v *domain.Verification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_verifications (`+verificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, string(v.FlowType), v.Email, v.CodeHash, v.Purpose,
		v.RetryCount, v.ResendCount, v.Completed, v.CreatedAt, v.ModifiedAt,
	)
	return err
}

// GetByID returns the record scoped to the flow, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, flow domain.FlowType, id string) (*domain.Verification, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+verificationColumns+` FROM email_verifications
		WHERE flow_type = $1 AND id = $2`, string(flow), id)
	return scanVerification(row)
}

// GetNewestByEmail returns the most recent record for the email in the flow, or nil.
func (r *PostgresRepository) GetNewestByEmail(ctx context.Context, flow domain.FlowType, email string) (*domain.Verification, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+verificationColumns+` FROM email_verifications
		WHERE flow_type = $1 AND email = $2
		ORDER BY created_at DESC LIMIT 1`, string(flow), email)
	return scanVerification(row)
}

// CountStartsSince counts records created for the email in the flow since the instant.
func (r *PostgresRepository) CountStartsSince(ctx context.Context, flow domain.FlowType, email string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_verifications
		WHERE flow_type = $1 AND email = $2 AND created_at >= $3`,
		string(flow), email, since).Scan(&n)
	return n, err
}

// IncrementRetry adds one failed validation attempt to the record.
func (r *PostgresRepository) IncrementRetry(ctx context.Context, flow domain.FlowType, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_verifications
		SET retry_count = retry_count + 1
		WHERE flow_type = $1 AND id = $2 AND NOT completed`,
		string(flow), id)
	return err
}

// ReissueCode swaps in a fresh code hash and bumps the resend counter.
func (r *PostgresRepository) ReissueCode(ctx context.Context, flow domain.FlowType, id, codeHash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_verifications
		SET code_hash = $1, resend_count = resend_count + 1, modified_at = $2
		WHERE flow_type = $3 AND id = $4 AND NOT completed`,
		codeHash, now, string(flow), id)
	return err
}

// TryComplete sets the set-once completed flag; first writer wins.
func (r *PostgresRepository) TryComplete(ctx context.Context, flow domain.FlowType, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_verifications
		SET completed = TRUE, modified_at = $1
		WHERE flow_type = $2 AND id = $3 AND NOT completed`,
		now, string(flow), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanVerification(row *sql.Row) (*domain.Verification, error) {
	var (
		v    domain.Verification
		flow string
	)
	err := row.Scan(&v.ID, &flow, &v.Email, &v.CodeHash, &v.Purpose,
		&v.RetryCount, &v.ResendCount, &v.Completed, &v.CreatedAt, &v.ModifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	v.FlowType = domain.FlowType(flow)
	return &v, nil
}
