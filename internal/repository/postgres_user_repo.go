package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
)

// PostgresUserRepo はUserRepositoryのPostgreSQL実装。
type PostgresUserRepo struct {
	q database.DBTX
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(q database.DBTX) *PostgresUserRepo {
	return &PostgresUserRepo{q: q}
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, name string) (*model.User, error) {
	query := `
		INSERT INTO users (name)
		VALUES ($1)
		RETURNING id, name, created_at`

	user := &model.User{}
	err := r.q.QueryRowContext(ctx, query, name).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, name, created_at
		FROM users
		WHERE id = $1`

	user := &model.User{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}

	return user, nil
}

// FindLoginByName は表示名でユーザーと資格情報をJOINして取得する。
func (r *PostgresUserRepo) FindLoginByName(ctx context.Context, name string) (*model.User, *model.Credential, error) {
	query := `
		SELECT u.id, u.name, u.created_at, c.user_id, c.hash, c.salt, c.created_at
		FROM users u
		INNER JOIN credentials c ON c.user_id = u.id
		WHERE u.name = $1`

	user := &model.User{}
	cred := &model.Credential{}
	err := r.q.QueryRowContext(ctx, query, name).Scan(
		&user.ID, &user.Name, &user.CreatedAt,
		&cred.UserID, &cred.Hash, &cred.Salt, &cred.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find login by name: %w", err)
	}

	return user, cred, nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) (int64, error) {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
