package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"finance-tracker/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
// Los lookups sin resultado devuelven un error que envuelve pgx.ErrNoRows.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByPhone(ctx context.Context, phone string) (domain.User, error)
	Update(ctx context.Context, id string, upd domain.UserUpdate) (domain.User, error)
}

// ErrDuplicate se devuelve cuando un indice unico rechaza la escritura.
var ErrDuplicate = errors.New("duplicate value")

// DuplicateError indica que campo violo la unicidad.
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return "duplicate value"
	}
	return fmt.Sprintf("duplicate %s", e.Field)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

func (e *DuplicateError) Unwrap() error { return e.Err }

// Querier es el subconjunto de pgxpool.Pool que usa el repositorio.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool Querier
	now  func() time.Time
}

func NewPgUserRepository(pool Querier) *PgUserRepository {
	return &PgUserRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

const userColumns = `id, name, username, phone, password_hash, created_at, updated_at`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `
		INSERT INTO users (id, name, username, phone, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	row := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Username,
		user.Phone,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", translateWriteError(err))
	}
	return created, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetByPhone(ctx context.Context, phone string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, phone))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by phone: %w", err)
	}
	return u, nil
}

// Update aplica solo los campos no nil y devuelve el registro resultante.
func (r *PgUserRepository) Update(ctx context.Context, id string, upd domain.UserUpdate) (domain.User, error) {
	const query = `
		UPDATE users
		SET name = COALESCE($2, name),
		    phone = COALESCE($3, phone),
		    password_hash = COALESCE($4, password_hash),
		    updated_at = $5
		WHERE id = $1
		RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query, id, upd.Name, upd.Phone, upd.PasswordHash, r.now())
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", translateWriteError(err))
	}
	return u, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.Phone,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

var uniqueConstraintFields = map[string]string{
	"users_username_key": "username",
	"users_phone_key":    "phone",
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		field := uniqueConstraintFields[pgErr.ConstraintName]
		if field == "" {
			field = pgErr.ColumnName
		}
		return &DuplicateError{Field: field, Err: err}
	}
	return err
}
