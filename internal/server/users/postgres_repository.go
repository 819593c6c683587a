package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avezhov/passport/internal/common"
	"github.com/avezhov/passport/internal/dbx"
	"github.com/avezhov/passport/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, name, email, password_hash, password_changed_at, reset_token_hash, reset_token_expires_at, role, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, name, email, password_hash, role)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role).Scan(&user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, common.ErrorEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte, changedAt time.Time) error {
	query :=
		`UPDATE users
		 SET password_hash = $2,
		     password_changed_at = $3,
		     reset_token_hash = NULL,
		     reset_token_expires_at = NULL
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, passwordHash, changedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRowAffected(res)
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error {
	query :=
		`UPDATE users
		 SET reset_token_hash = $2, reset_token_expires_at = $3
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRowAffected(res)
}

func (r *PostgresRepository) ClearResetToken(ctx context.Context, id string) error {
	query :=
		`UPDATE users
		 SET reset_token_hash = NULL, reset_token_expires_at = NULL
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRowAffected(res)
}

// ResetPasswordByToken relies on the single-statement conditional update for
// atomicity: concurrent attempts with the same token can only match once,
// because the first match clears reset_token_hash.
func (r *PostgresRepository) ResetPasswordByToken(ctx context.Context, tokenHash string, passwordHash []byte, changedAt, now time.Time) (*models.User, error) {
	query :=
		`UPDATE users
		 SET password_hash = $2,
		     password_changed_at = $3,
		     reset_token_hash = NULL,
		     reset_token_expires_at = NULL
		 WHERE reset_token_hash = $1 AND reset_token_expires_at > $4
		 RETURNING ` + userColumns

	return r.scanUser(r.db.QueryRowContext(ctx, query, tokenHash, passwordHash, changedAt, now))
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
			&user.PasswordChangedAt, &user.ResetTokenHash, &user.ResetTokenExpiresAt,
			&user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.PasswordChangedAt, &user.ResetTokenHash, &user.ResetTokenExpiresAt,
		&user.Role, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
