package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yusufkecer/auth-backend/internal/config"
	"github.com/yusufkecer/auth-backend/internal/db"
	"github.com/yusufkecer/auth-backend/internal/domain"
)

// UserStore persists users. Reads return nil, nil when nothing matches.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

// ResetRequestStore persists password reset requests. Reads return nil, nil
// when nothing matches.
type ResetRequestStore interface {
	Create(ctx context.Context, r *domain.ResetPasswordRequest) error
	// FindActiveByEmail returns unconsumed requests expiring after now,
	// newest first.
	FindActiveByEmail(ctx context.Context, email string, now time.Time) ([]domain.ResetPasswordRequest, error)
	GetByID(ctx context.Context, id string) (*domain.ResetPasswordRequest, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.ResetPasswordRequest, error)
	RotateToken(ctx context.Context, id, tokenHash string) error
	// Consume records the terminal CONSUMED state. It reports false when the
	// request was already consumed or does not exist.
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
	// DeleteStale removes requests that expired or were consumed before
	// the cutoff.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// Tx bundles the stores bound to one transaction.
type Tx struct {
	Users         UserStore
	ResetRequests ResetRequestStore
}

// Store is the persistence collaborator of the account service.
type Store interface {
	Users() UserStore
	ResetRequests() ResetRequestStore
	// InTx runs fn atomically. Reads made through tx lock the rows they
	// return until the transaction ends.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// dialect captures what differs between the SQL drivers.
type dialect struct {
	lockClause string
	txOptions  *sql.TxOptions
}

var dialects = map[string]dialect{
	config.DriverMySQL: {
		lockClause: " FOR UPDATE",
		txOptions:  &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	},
	// SQLite runs on a single connection, so transactions already serialize.
	config.DriverSQLite: {},
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a Store for a database opened with the given driver.
func NewSQLStore(database *sql.DB, driver string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	return &SQLStore{db: database, dialect: d}, nil
}

func (s *SQLStore) Users() UserStore {
	return NewUserRepository(s.db, "")
}

func (s *SQLStore) ResetRequests() ResetRequestStore {
	return NewResetRequestRepository(s.db, "")
}

func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, s.db, s.dialect.txOptions, func(ctx context.Context, dbtx db.DBTX) error {
		return fn(ctx, Tx{
			Users:         NewUserRepository(dbtx, s.dialect.lockClause),
			ResetRequests: NewResetRequestRepository(dbtx, s.dialect.lockClause),
		})
	})
}
