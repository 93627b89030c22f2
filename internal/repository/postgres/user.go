package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, username, password_hash, role, parent_id, plan_id, plan_activated_at, plan_ends_at, used_searches`

const createUser = `-- name: CreateUser
INSERT INTO users (id, created_at, username, password_hash, role, parent_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createUser, u.ID, u.CreatedAt, u.Username, u.HashedPassword, u.Role, u.ParentID)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return user, apperrors.ErrUserAlreadyExists
			case pgerrcode.CheckViolation:
				return user, apperrors.ErrRoleInvalid
			}
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByIDForUpdate = `-- name: GetUserByIDForUpdate
SELECT ` + userColumns + ` FROM users
WHERE id = $1
FOR UPDATE
`

func (r *UserRepo) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByIDForUpdate, id)
	return collectUser(rows)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + ` FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByUsername, username)
	return collectUser(rows)
}

const deleteUser = `-- name: DeleteUser
DELETE FROM users
WHERE id = $1
`

func (r *UserRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteUser, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

const activatePlan = `-- name: ActivatePlan
UPDATE users
SET plan_id = $2, plan_activated_at = $3, plan_ends_at = $4, used_searches = 0
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) ActivatePlan(ctx context.Context, userID uuid.UUID, planID uuid.UUID, activatedAt time.Time, endsAt time.Time) (models.User, error) {
	rows, _ := r.DB.Query(ctx, activatePlan, userID, planID, activatedAt, endsAt)
	return collectUser(rows)
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.CreatedAt, &u.Username, &u.HashedPassword, &u.Role,
		&u.ParentID, &u.PlanID, &u.PlanActivatedAt, &u.PlanEndsAt, &u.UsedSearches,
	)
	return u, err
}
