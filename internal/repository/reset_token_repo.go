package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yusufkecer/auth-backend/internal/db"
	"github.com/yusufkecer/auth-backend/internal/domain"
)

const resetColumns = `id, token_hash, email, expires_at, consumed_at, created_at`

// ResetRequestRepository implements ResetRequestStore. lock is appended to
// reads so a transaction owns the rows it inspects.
type ResetRequestRepository struct {
	db   db.DBTX
	lock string
}

func NewResetRequestRepository(db db.DBTX, lock string) *ResetRequestRepository {
	return &ResetRequestRepository{db: db, lock: lock}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResetRequest(row rowScanner) (*domain.ResetPasswordRequest, error) {
	var (
		req        domain.ResetPasswordRequest
		consumedAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.TokenHash, &req.Email, &req.ExpiresAt, &consumedAt, &req.CreatedAt); err != nil {
		return nil, err
	}
	req.ExpiresAt = req.ExpiresAt.UTC()
	req.CreatedAt = req.CreatedAt.UTC()
	if consumedAt.Valid {
		t := consumedAt.Time.UTC()
		req.ConsumedAt = &t
	}
	return &req, nil
}

func (r *ResetRequestRepository) Create(ctx context.Context, req *domain.ResetPasswordRequest) error {
	var consumedAt any
	if req.ConsumedAt != nil {
		consumedAt = req.ConsumedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reset_password_requests (`+resetColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.TokenHash, req.Email, req.ExpiresAt.UTC(), consumedAt, req.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create reset request: %w", err)
	}
	return nil
}

func (r *ResetRequestRepository) FindActiveByEmail(ctx context.Context, email string, now time.Time) ([]domain.ResetPasswordRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+resetColumns+` FROM reset_password_requests
		 WHERE email = ? AND consumed_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC`+r.lock,
		email, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reset requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.ResetPasswordRequest
	for rows.Next() {
		req, err := scanResetRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reset request: %w", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return requests, nil
}

func (r *ResetRequestRepository) GetByID(ctx context.Context, id string) (*domain.ResetPasswordRequest, error) {
	return r.getOne(ctx, `SELECT `+resetColumns+` FROM reset_password_requests WHERE id = ?`+r.lock, id)
}

func (r *ResetRequestRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.ResetPasswordRequest, error) {
	return r.getOne(ctx, `SELECT `+resetColumns+` FROM reset_password_requests WHERE token_hash = ?`+r.lock, tokenHash)
}

func (r *ResetRequestRepository) getOne(ctx context.Context, query string, arg any) (*domain.ResetPasswordRequest, error) {
	req, err := scanResetRequest(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reset request: %w", err)
	}
	return req, nil
}

func (r *ResetRequestRepository) RotateToken(ctx context.Context, id, tokenHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reset_password_requests SET token_hash = ? WHERE id = ? AND consumed_at IS NULL`,
		tokenHash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to rotate reset token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ResetRequestRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reset_password_requests SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume reset request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *ResetRequestRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reset_password_requests
		 WHERE expires_at < ? OR (consumed_at IS NOT NULL AND consumed_at < ?)`,
		before.UTC(), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale reset requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		log.Debugf("Deleted %v stale reset requests", n)
	}
	return n, nil
}
