package user

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/db"
)

// Store is the persistence contract for identities.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error)
	UpdateProfile(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	ListUsersExcept(ctx context.Context, exclude []uuid.UUID, offset, limit int) ([]User, error)
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(conn *sqlx.DB) *Repository {
	return &Repository{db: conn}
}

const userColumns = `id, first_name, last_name, email, password, age, gender, profile_url, about, skills, created_at, updated_at`

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	query := `INSERT INTO users (first_name, last_name, email, password, profile_url, about, skills)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		u.FirstName, u.LastName, u.Email, u.Password, u.ProfileURL, u.About, u.Skills,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.ErrEmailTaken
		}
		return errors.Wrap(err, "userRepo.CreateUser.Insert")
	}
	return nil
}

func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "userRepo.GetUserByID")
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "userRepo.GetUserByEmail")
	}
	return u, nil
}

func (r *Repository) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	var users []User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[]) ORDER BY first_name, id`, uuidStrings(ids))
	if err != nil {
		return nil, errors.Wrap(err, "userRepo.GetUsersByIDs")
	}
	return users, nil
}

func (r *Repository) UpdateProfile(ctx context.Context, u *User) error {
	query := `UPDATE users SET first_name = $2, last_name = $3, email = $4, age = $5, gender = $6,
            profile_url = $7, about = $8, skills = $9, updated_at = now()
        WHERE id = $1
        RETURNING updated_at`
	err := r.db.QueryRowxContext(ctx, query,
		u.ID, u.FirstName, u.LastName, u.Email, u.Age, u.Gender, u.ProfileURL, u.About, u.Skills,
	).Scan(&u.UpdatedAt)
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return apperr.ErrUserNotFound
		case db.IsUniqueViolation(err):
			return apperr.ErrEmailTaken
		case db.IsCheckViolation(err):
			return apperr.InvalidArgument("profile data is invalid")
		}
		return errors.Wrap(err, "userRepo.UpdateProfile")
	}
	return nil
}

func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return errors.Wrap(err, "userRepo.UpdatePassword")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

func (r *Repository) ListUsersExcept(ctx context.Context, exclude []uuid.UUID, offset, limit int) ([]User, error) {
	var users []User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users
        WHERE NOT (id = ANY($1::uuid[]))
        ORDER BY created_at DESC, id
        OFFSET $2 LIMIT $3`, uuidStrings(exclude), offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "userRepo.ListUsersExcept")
	}
	return users, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
