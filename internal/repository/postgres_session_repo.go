package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
)

// PostgresSessionRepo はSessionRepositoryのPostgreSQL実装。
type PostgresSessionRepo struct {
	q database.DBTX
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(q database.DBTX) *PostgresSessionRepo {
	return &PostgresSessionRepo{q: q}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, userID, token string) (*model.Session, error) {
	query := `
		INSERT INTO sessions (user_id, token)
		VALUES ($1, $2)
		RETURNING id, user_id, token, created_at`

	session := &model.Session{}
	err := r.q.QueryRowContext(ctx, query, userID, token).Scan(
		&session.ID, &session.UserID, &session.Token, &session.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// FindByToken はトークン完全一致でセッションを取得する。
func (r *PostgresSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	query := `
		SELECT id, user_id, token, created_at
		FROM sessions
		WHERE token = $1`

	session := &model.Session{}
	err := r.q.QueryRowContext(ctx, query, token).Scan(
		&session.ID, &session.UserID, &session.Token, &session.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by token: %w", err)
	}

	return session, nil
}

// FindByUserID は指定ユーザーの有効なセッションを取得する。
// 複数存在する場合は最新の1件を返す。
func (r *PostgresSessionRepo) FindByUserID(ctx context.Context, userID string) (*model.Session, error) {
	query := `
		SELECT id, user_id, token, created_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	session := &model.Session{}
	err := r.q.QueryRowContext(ctx, query, userID).Scan(
		&session.ID, &session.UserID, &session.Token, &session.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by user id: %w", err)
	}

	return session, nil
}

// DeleteByToken はトークン一致のセッションを削除する。
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, token string) (int64, error) {
	query := `DELETE FROM sessions WHERE token = $1`

	result, err := r.q.ExecContext(ctx, query, token)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	query := `DELETE FROM sessions WHERE user_id = $1`

	if _, err := r.q.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete sessions by user id: %w", err)
	}

	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
