// Package file はファイルの公開・取得・削除のライフサイクルを提供する。
package file

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/repository"
)

// Store はファイル本体の配置操作。storage.Storeが実装する。
type Store interface {
	Exists(userID, key string) (bool, error)
	Promote(userID, spoolPath, key string) error
	Rekey(userID, oldKey, newKey string) error
	Open(userID, key string) (io.ReadCloser, error)
	Remove(userID, key string) error
}

// 保持期間コードと実際の期間の対応。1ヶ月は28日の固定長で数える。
var durationByCode = map[string]time.Duration{
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
	"m": 28 * 24 * time.Hour,
	"q": 84 * 24 * time.Hour,
	"y": 336 * 24 * time.Hour,
}

// キー衝突時の再生成上限。
const maxKeyAttempts = 3

// Service はファイルのライフサイクルを司る。
// バイト列の移動とメタデータ登録の順序には不変条件がある:
// メタデータ行が存在するファイルのバイト列は必ず本置き場にある。
// このためバイト列の移動を先に、行の挿入を後に行う。
type Service struct {
	runner  database.TxRunner
	repos   repository.Repositories
	store   Store
	keyGen  func() (string, error)
	nowFunc func() time.Time
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(runner database.TxRunner, repos repository.Repositories, store Store, logger *slog.Logger) *Service {
	return &Service{
		runner:  runner,
		repos:   repos,
		store:   store,
		keyGen:  generateKey,
		nowFunc: time.Now,
		logger:  logger,
	}
}

// Create はスプール済みのバイト列をキー名で公開し、メタデータを登録する。
// 不正な保持期間コードは受信済みバイト列を破棄せず呼び出し側へ返す
// （呼び出し側がスプールの後始末を行う）。
// キーの一意性はディスク上の事前確認とストレージの一意制約の両方で守り、
// 衝突時はバイト列を付け替えて再試行する。
func (s *Service) Create(ctx context.Context, userID, displayName, durationCode, spoolPath string, bytes int64) (*model.File, error) {
	duration, ok := durationByCode[durationCode]
	if !ok {
		return nil, model.NewInvalidDurationError(durationCode)
	}
	deleteDate := s.nowFunc().Add(duration)

	currentKey := ""
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := s.keyGen()
		if err != nil {
			return nil, fmt.Errorf("failed to generate file key: %w", err)
		}

		exists, err := s.store.Exists(userID, key)
		if err != nil {
			return nil, err
		}
		if exists {
			s.logger.Warn("file key collision on disk, retrying",
				slog.String("user_id", userID),
				slog.Int("attempt", attempt),
			)
			continue
		}

		if currentKey == "" {
			err = s.store.Promote(userID, spoolPath, key)
		} else {
			err = s.store.Rekey(userID, currentKey, key)
		}
		if err != nil {
			return nil, err
		}
		currentKey = key

		var created *model.File
		err = s.runner.RunTx(ctx, func(q database.DBTX) error {
			created, err = s.repos.Files(q).Create(ctx, &model.File{
				UserID:      userID,
				Key:         key,
				DisplayName: displayName,
				DeleteDate:  deleteDate,
				Bytes:       bytes,
			})
			return err
		})
		if err == nil {
			return created, nil
		}
		if !repository.IsUniqueViolation(err) {
			s.removeOrphan(userID, currentKey)
			return nil, err
		}

		s.logger.Warn("file key collision in metadata, retrying",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}

	s.removeOrphan(userID, currentKey)
	return nil, fmt.Errorf("failed to create file: key collision persisted after %d attempts", maxKeyAttempts)
}

// Lookup はキーからファイルを解決し、本体のリーダーとメタデータを返す。
// ダウンロードカウンタの加算はメタデータ解決と同じトランザクションで行う。
// メタデータはあるのに本体が開けない状態はサーバー異常であり、
// カウンタは加算しない。
func (s *Service) Lookup(ctx context.Context, key string) (*model.File, io.ReadCloser, error) {
	var found *model.File
	var reader io.ReadCloser
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		file, err := s.repos.Files(q).FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if file == nil {
			return model.NewFileNotFoundError(key)
		}

		reader, err = s.store.Open(file.UserID, file.Key)
		if err != nil {
			return fmt.Errorf("file %s has metadata but no bytes: %w", file.Key, err)
		}

		if err := s.repos.Files(q).IncrementDownloads(ctx, file.ID); err != nil {
			reader.Close()
			reader = nil
			return err
		}

		file.Downloads++
		found = file
		return nil
	})
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		return nil, nil, err
	}

	return found, reader, nil
}

// Delete は所有者の指示でファイルを削除する。
// 所有者以外の削除要求は拒否する。メタデータ行の削除が主であり、
// バイト列の削除に失敗してもファイルは削除済みとして扱う
// （行のないバイト列は残骸、バイト列のない行は配信不能のため）。
func (s *Service) Delete(ctx context.Context, callerID, key string) (*model.File, error) {
	var deleted *model.File
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		file, err := s.repos.Files(q).FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if file == nil {
			return model.NewFileNotFoundError(key)
		}
		if file.UserID != callerID {
			return model.NewPermissionDeniedError(key)
		}

		if _, err := s.repos.Files(q).DeleteByID(ctx, file.ID); err != nil {
			return err
		}
		deleted = file
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Remove(deleted.UserID, deleted.Key); err != nil {
		s.logger.Error("failed to remove file bytes after deletion",
			slog.String("user_id", deleted.UserID),
			slog.String("key", deleted.Key),
			slog.String("error", err.Error()),
		)
	}

	return deleted, nil
}

// ListOwned は指定ユーザーが所有する全ファイルを新しい順に返す。
func (s *Service) ListOwned(ctx context.Context, userID string) ([]*model.File, error) {
	var files []*model.File
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		var err error
		files, err = s.repos.Files(q).ListByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

const keyBytes = 32

func generateKey() (string, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func (s *Service) removeOrphan(userID, key string) {
	if key == "" {
		return
	}
	if err := s.store.Remove(userID, key); err != nil {
		s.logger.Error("failed to remove orphaned file bytes",
			slog.String("user_id", userID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
