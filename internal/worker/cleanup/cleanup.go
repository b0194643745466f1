// Package cleanup は期限切れファイルの自動削除ジョブを提供する。
// delete_dateを過ぎたファイルのバイト列とメタデータ行を定期バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/repository"
)

// Store はバイト列の削除に必要な操作。storage.Storeが実装する。
type Store interface {
	Remove(userID, key string) error
}

// Recorder は掃除結果のメトリクス記録。
type Recorder interface {
	RecordCleanupDeleted(count int)
}

// CleanupJob は期限切れファイルの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// 1ファイルの失敗で全体を止めず、残りの処理を続行する。
type CleanupJob struct {
	db        database.DBTX
	repos     repository.Repositories
	store     Store
	metrics   Recorder
	logger    *slog.Logger
	nowFunc   func() time.Time
	BatchSize int // 1回の実行で処理する最大件数
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトのバッチ上限は500件。
func NewCleanupJob(db database.DBTX, repos repository.Repositories, store Store, metrics Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:        db,
		repos:     repos,
		store:     store,
		metrics:   metrics,
		logger:    logger,
		nowFunc:   time.Now,
		BatchSize: 500,
	}
}

// Run は期限切れファイルを削除する。
// バイト列→メタデータ行の順で消す。バイト列が既に存在しない場合は
// そのまま行の削除へ進む（再実行で冪等になるように）。
// バイト列の削除に失敗したファイルは行を残してスキップし、次回に委ねる。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.nowFunc()

	expired, err := j.repos.Files(j.db).ListExpired(ctx, start, j.BatchSize)
	if err != nil {
		j.logger.Error("期限切れファイルの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れファイルの取得に失敗: %w", err)
	}

	deleted := 0
	for _, f := range expired {
		if err := j.removeOne(ctx, f); err != nil {
			j.logger.Error("期限切れファイルの削除に失敗しました",
				slog.String("file_id", f.ID),
				slog.String("key", f.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	j.metrics.RecordCleanupDeleted(deleted)

	duration := time.Since(start)
	j.logger.Info("期限切れファイルの掃除が完了しました",
		slog.Int("expired_count", len(expired)),
		slog.Int("deleted_count", deleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) removeOne(ctx context.Context, f *model.File) error {
	if err := j.store.Remove(f.UserID, f.Key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if _, err := j.repos.Files(j.db).DeleteByID(ctx, f.ID); err != nil {
		return err
	}
	return nil
}
