package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
)

// PostgresFileRepo はFileRepositoryのPostgreSQL実装。
type PostgresFileRepo struct {
	q database.DBTX
}

// NewPostgresFileRepo はPostgresFileRepoを生成する。
func NewPostgresFileRepo(q database.DBTX) *PostgresFileRepo {
	return &PostgresFileRepo{q: q}
}

// Create はファイルメタデータを作成する。
func (r *PostgresFileRepo) Create(ctx context.Context, file *model.File) (*model.File, error) {
	query := `
		INSERT INTO files (user_id, key, display_name, delete_date, bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, key, display_name, upload_date, delete_date, downloads, bytes`

	created := &model.File{}
	err := r.q.QueryRowContext(ctx, query,
		file.UserID, file.Key, file.DisplayName, file.DeleteDate, file.Bytes,
	).Scan(
		&created.ID, &created.UserID, &created.Key, &created.DisplayName,
		&created.UploadDate, &created.DeleteDate, &created.Downloads, &created.Bytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return created, nil
}

// FindByKey はキー完全一致でファイルを取得する。
func (r *PostgresFileRepo) FindByKey(ctx context.Context, key string) (*model.File, error) {
	query := `
		SELECT id, user_id, key, display_name, upload_date, delete_date, downloads, bytes
		FROM files
		WHERE key = $1`

	file := &model.File{}
	err := r.q.QueryRowContext(ctx, query, key).Scan(
		&file.ID, &file.UserID, &file.Key, &file.DisplayName,
		&file.UploadDate, &file.DeleteDate, &file.Downloads, &file.Bytes,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file by key: %w", err)
	}

	return file, nil
}

// IncrementDownloads はダウンロードカウンタを1増やす。
func (r *PostgresFileRepo) IncrementDownloads(ctx context.Context, id string) error {
	query := `UPDATE files SET downloads = downloads + 1 WHERE id = $1`

	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}

	return nil
}

// DeleteByID は指定IDのファイル行を削除する。
func (r *PostgresFileRepo) DeleteByID(ctx context.Context, id string) (int64, error) {
	query := `DELETE FROM files WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

// ListByUserID は指定ユーザーが所有する全ファイルを新しい順に返す。
func (r *PostgresFileRepo) ListByUserID(ctx context.Context, userID string) ([]*model.File, error) {
	query := `
		SELECT id, user_id, key, display_name, upload_date, delete_date, downloads, bytes
		FROM files
		WHERE user_id = $1
		ORDER BY upload_date DESC`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files by user id: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// ListExpired はdelete_dateがnowより過去のファイルを最大limit件返す。
func (r *PostgresFileRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
	query := `
		SELECT id, user_id, key, display_name, upload_date, delete_date, downloads, bytes
		FROM files
		WHERE delete_date < $1
		ORDER BY delete_date ASC
		LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// DeleteByUserID は指定ユーザーの全ファイル行を削除する。
func (r *PostgresFileRepo) DeleteByUserID(ctx context.Context, userID string) error {
	query := `DELETE FROM files WHERE user_id = $1`

	if _, err := r.q.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete files by user id: %w", err)
	}

	return nil
}

func scanFiles(rows *sql.Rows) ([]*model.File, error) {
	var files []*model.File
	for rows.Next() {
		file := &model.File{}
		if err := rows.Scan(
			&file.ID, &file.UserID, &file.Key, &file.DisplayName,
			&file.UploadDate, &file.DeleteDate, &file.Downloads, &file.Bytes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file rows: %w", err)
	}

	return files, nil
}

// compile-time interface check
var _ FileRepository = (*PostgresFileRepo)(nil)
