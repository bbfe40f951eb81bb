package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/platformplatform/identity-core/internal/session/domain"
)

// PostgresRepository persists sessions in Postgres. The conditional updates
// run as single statements on the pool's auto-commit connections, which is
// what makes them safe under concurrent refreshes.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, tenant_id, user_id, refresh_jti, previous_refresh_jti, refresh_version,
	device_class, user_agent, ip_address, created_at, modified_at, revoked_at, revoked_reason`

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.TenantID, s.UserID, s.RefreshJti, s.PreviousJti, s.RefreshVersion,
		string(s.DeviceClass), s.UserAgent, s.IPAddress, s.CreatedAt, s.ModifiedAt,
		s.RevokedAt, reasonToNullString(s.RevokedReason),
	)
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListByUser returns all sessions for the user in the tenant, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, tenantID, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY id DESC`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TryRotate performs the rotation compare-and-swap. Exactly one of two racing
// callers sees rowsAffected == 1.
func (r *PostgresRepository) TryRotate(ctx context.Context, sessionID, currentJti string, currentVersion int64, newJti string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET previous_refresh_jti = refresh_jti,
		    refresh_jti = $1,
		    refresh_version = refresh_version + 1,
		    modified_at = $2
		WHERE id = $3 AND refresh_jti = $4 AND refresh_version = $5 AND revoked_at IS NULL`,
		newJti, now, sessionID, currentJti, currentVersion,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TryRevokeForReplay revokes the session with reason replay-detected if it is
// not already revoked. Safe to call from concurrent detectors; only the first
// writer commits.
func (r *PostgresRepository) TryRevokeForReplay(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = $1, revoked_reason = $2
		WHERE id = $3 AND revoked_at IS NULL`,
		now, string(domain.ReasonReplayDetected), sessionID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Revoke marks the session revoked. Returns ErrAlreadyRevoked if the session
// exists but is already revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, sessionID string, now time.Time, reason domain.RevocationReason) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = $1, revoked_reason = $2
		WHERE id = $3 AND revoked_at IS NULL`,
		now, string(reason), sessionID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRevoked
	}
	return nil
}

// RevokeAllByUser revokes every active session of the user.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string, now time.Time, reason domain.RevocationReason) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = $1, revoked_reason = $2
		WHERE user_id = $3 AND revoked_at IS NULL`,
		now, string(reason), userID,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s           domain.Session
		previousJti sql.NullString
		deviceClass string
		revokedAt   sql.NullTime
		reason      sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.TenantID, &s.UserID, &s.RefreshJti, &previousJti, &s.RefreshVersion,
		&deviceClass, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ModifiedAt,
		&revokedAt, &reason,
	)
	if err != nil {
		return nil, err
	}
	if previousJti.Valid {
		s.PreviousJti = &previousJti.String
	}
	s.DeviceClass = domain.DeviceClass(deviceClass)
	if revokedAt.Valid {
		t := revokedAt.Time
		s.RevokedAt = &t
	}
	if reason.Valid {
		rr := domain.RevocationReason(reason.String)
		s.RevokedReason = &rr
	}
	return &s, nil
}

func reasonToNullString(r *domain.RevocationReason) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}
