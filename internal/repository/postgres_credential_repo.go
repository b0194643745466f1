package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
)

// PostgresCredentialRepo はCredentialRepositoryのPostgreSQL実装。
type PostgresCredentialRepo struct {
	q database.DBTX
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(q database.DBTX) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{q: q}
}

// Create は資格情報を作成する。
func (r *PostgresCredentialRepo) Create(ctx context.Context, cred *model.Credential) error {
	query := `
		INSERT INTO credentials (user_id, hash, salt)
		VALUES ($1, $2, $3)`

	_, err := r.q.ExecContext(ctx, query, cred.UserID, cred.Hash, cred.Salt)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// DeleteByUserID は指定ユーザーの資格情報を削除する。
func (r *PostgresCredentialRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	query := `DELETE FROM credentials WHERE user_id = $1`

	result, err := r.q.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
