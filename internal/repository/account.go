package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/presence-keeper-go/internal/model"
)

type AccountRepository interface {
	// GetAll returns every configured account, ordered by identity.
	GetAll(ctx context.Context) ([]model.Account, error)
	// UpdateSessionToken stores the latest token issued by the remote
	// service, or clears it when token is nil.
	UpdateSessionToken(ctx context.Context, identity string, token *string) error
}

// accountDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type accountDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type accountRepo struct {
	db accountDB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) GetAll(ctx context.Context) ([]model.Account, error) {
	accounts := []model.Account{}
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM accounts ORDER BY identity
	`)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepo) UpdateSessionToken(ctx context.Context, identity string, token *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			session_token = $2,
			updated_at = NOW()
		WHERE identity = $1
	`, identity, token)
	return err
}
