// Package storage はファイル本体のディスク配置を管理する。
//
// データディレクトリ配下のレイアウト:
//
//	store/<user_id>/<key>  公開済みのファイル本体
//	spool/<user_id>/<...>  受信中の一時ファイル
//
// スプールと本置き場は同一ファイルシステム上にあり、公開は
// os.Renameの原子的な移動1回で完了する。
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	storeDirName = "store"
	spoolDirName = "spool"

	dirPerm = 0o750
)

// Store はデータディレクトリ配下のファイル操作を提供する。
type Store struct {
	root string
}

// NewStore はStoreを生成する。
func NewStore(root string) *Store {
	return &Store{root: root}
}

// EnsureLayout は本置き場とスプールのトップディレクトリを作成する。
// 起動時に一度呼ぶ。
func (s *Store) EnsureLayout() error {
	for _, dir := range []string{
		filepath.Join(s.root, storeDirName),
		filepath.Join(s.root, spoolDirName),
	} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateSpoolFile はユーザーのスプールに受信用の一時ファイルを作成する。
// 呼び出し側がCloseし、PromoteまたはDiscardで後始末する。
func (s *Store) CreateSpoolFile(userID string) (*os.File, error) {
	dir := filepath.Join(s.root, spoolDirName, userID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	return f, nil
}

// Promote はスプール上のファイルをキー名で本置き場へ移動する。
func (s *Store) Promote(userID, spoolPath, key string) error {
	dir := filepath.Join(s.root, storeDirName, userID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	if err := os.Rename(spoolPath, filepath.Join(dir, key)); err != nil {
		return fmt.Errorf("failed to promote spool file: %w", err)
	}
	return nil
}

// Rekey は本置き場のファイルを別のキー名に付け替える。
// キー衝突時の再試行で、受信済みバイト列を動かさずに使う。
func (s *Store) Rekey(userID, oldKey, newKey string) error {
	if err := os.Rename(s.storePath(userID, oldKey), s.storePath(userID, newKey)); err != nil {
		return fmt.Errorf("failed to rekey stored file: %w", err)
	}
	return nil
}

// Discard はスプール上の一時ファイルを削除する。
func (s *Store) Discard(spoolPath string) error {
	if err := os.Remove(spoolPath); err != nil {
		return fmt.Errorf("failed to discard spool file: %w", err)
	}
	return nil
}

// Exists は本置き場にキー名のファイルがあるかを返す。
func (s *Store) Exists(userID, key string) (bool, error) {
	_, err := os.Stat(s.storePath(userID, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat stored file: %w", err)
}

// Open は本置き場のファイルを読み取り用に開く。
func (s *Store) Open(userID, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.storePath(userID, key))
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return f, nil
}

// Remove は本置き場のファイルを削除する。
func (s *Store) Remove(userID, key string) error {
	if err := os.Remove(s.storePath(userID, key)); err != nil {
		return fmt.Errorf("failed to remove stored file: %w", err)
	}
	return nil
}

// PurgeUser は指定ユーザーの本置き場とスプールを丸ごと削除する。
// 退会時に使う。ディレクトリが存在しなくてもエラーにはならない。
func (s *Store) PurgeUser(userID string) error {
	for _, dir := range []string{
		filepath.Join(s.root, storeDirName, userID),
		filepath.Join(s.root, spoolDirName, userID),
	} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to purge user directory %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) storePath(userID, key string) string {
	return filepath.Join(s.root, storeDirName, userID, key)
}
