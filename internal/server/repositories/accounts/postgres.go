package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// registrationLockKey is the pg_advisory_xact_lock key guarding the
// count-then-insert of a registration.
const registrationLockKey int64 = 0x6163636b

const emailConstraint = "accounts_email_key"

const selectColumns = `id, email, password_hash, title, first_name, last_name, accept_terms, role,
		verification_token, verified_at, reset_token, reset_token_expires, password_reset_at,
		created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Title, &a.FirstName, &a.LastName,
		&a.AcceptTerms, &a.Role, &a.VerificationToken, &a.Verified, &a.ResetToken,
		&a.ResetTokenExpires, &a.PasswordReset, &a.Created, &a.Updated)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) Lock(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, registrationLockKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, title, first_name, last_name, accept_terms, role,
			verification_token, verified_at, reset_token, reset_token_expires, password_reset_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.Title, a.FirstName, a.LastName, a.AcceptTerms, string(a.Role),
		a.VerificationToken, a.Verified, a.ResetToken, a.ResetTokenExpires, a.PasswordReset,
		a.Created, a.Updated)
	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, a *models.Account) error {
	return r.update(ctx, a, `id = $1`)
}

// ConsumeResetToken writes a only while the stored reset digest still equals
// tokenHash, so a reset token can be spent once even under concurrent use.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, a *models.Account, tokenHash string) error {
	return r.update(ctx, a, `id = $1 AND reset_token = $15`, tokenHash)
}

func (r *PostgresRepository) update(ctx context.Context, a *models.Account, where string, extra ...any) error {
	query := `
		UPDATE accounts SET email = $2, password_hash = $3, title = $4, first_name = $5, last_name = $6,
			accept_terms = $7, role = $8, verification_token = $9, verified_at = $10, reset_token = $11,
			reset_token_expires = $12, password_reset_at = $13, updated_at = $14
		WHERE ` + where
	args := []any{
		a.ID, a.Email, a.PasswordHash, a.Title, a.FirstName, a.LastName, a.AcceptTerms, string(a.Role),
		a.VerificationToken, a.Verified, a.ResetToken, a.ResetTokenExpires, a.PasswordReset, a.Updated,
	}
	res, err := r.db.ExecContext(ctx, query, append(args, extra...)...)
	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) findOne(ctx context.Context, where string, args ...any) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE ` + where

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, `email = $1`, email)
}

func (r *PostgresRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (*models.Account, error) {
	return r.findOne(ctx, `verification_token = $1`, tokenHash)
}

func (r *PostgresRepository) FindByActiveResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	return r.findOne(ctx, `reset_token = $1 AND reset_token_expires > $2`, tokenHash, now)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
