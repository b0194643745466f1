package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/repository"
)

// --- モック定義 ---

type mockFileRepo struct {
	repository.FileRepository
	listExpiredFunc func(ctx context.Context, now time.Time, limit int) ([]*model.File, error)
	deleteByIDFunc  func(ctx context.Context, id string) (int64, error)
}

func (m *mockFileRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
	return m.listExpiredFunc(ctx, now, limit)
}

func (m *mockFileRepo) DeleteByID(ctx context.Context, id string) (int64, error) {
	return m.deleteByIDFunc(ctx, id)
}

type mockRepos struct {
	files *mockFileRepo
}

func (m *mockRepos) Users(q database.DBTX) repository.UserRepository             { return nil }
func (m *mockRepos) Credentials(q database.DBTX) repository.CredentialRepository { return nil }
func (m *mockRepos) Sessions(q database.DBTX) repository.SessionRepository       { return nil }
func (m *mockRepos) Files(q database.DBTX) repository.FileRepository             { return m.files }

type mockStore struct {
	removeFunc func(userID, key string) error
}

func (m *mockStore) Remove(userID, key string) error {
	return m.removeFunc(userID, key)
}

type mockRecorder struct {
	recorded []int
}

func (m *mockRecorder) RecordCleanupDeleted(count int) {
	m.recorded = append(m.recorded, count)
}

func newTestJob(repos *mockRepos, store *mockStore, rec *mockRecorder) *CleanupJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCleanupJob(nil, repos, store, rec, logger)
}

// --- テスト ---

// 期限切れファイルのバイト列と行が両方削除されることを検証
func TestCleanupJob_Run_DeletesExpiredFiles(t *testing.T) {
	expired := []*model.File{
		{ID: "f1", UserID: "u1", Key: "k1"},
		{ID: "f2", UserID: "u2", Key: "k2"},
	}
	var removedKeys, deletedIDs []string
	repos := &mockRepos{files: &mockFileRepo{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
			return expired, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) (int64, error) {
			deletedIDs = append(deletedIDs, id)
			return 1, nil
		},
	}}
	store := &mockStore{removeFunc: func(userID, key string) error {
		removedKeys = append(removedKeys, key)
		return nil
	}}
	rec := &mockRecorder{}

	job := newTestJob(repos, store, rec)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(removedKeys) != 2 || len(deletedIDs) != 2 {
		t.Errorf("removed = %v, deleted = %v, want 2 each", removedKeys, deletedIDs)
	}
	if len(rec.recorded) != 1 || rec.recorded[0] != 2 {
		t.Errorf("recorded = %v, want [2]", rec.recorded)
	}
}

// バイト列が既に消えているファイルでも行の削除へ進むことを検証
func TestCleanupJob_Run_MissingBytesStillDeletesRow(t *testing.T) {
	rowDeleted := false
	repos := &mockRepos{files: &mockFileRepo{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
			return []*model.File{{ID: "f1", UserID: "u1", Key: "k1"}}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) (int64, error) {
			rowDeleted = true
			return 1, nil
		},
	}}
	store := &mockStore{removeFunc: func(userID, key string) error {
		return fmt.Errorf("failed to remove stored file: %w", fs.ErrNotExist)
	}}
	rec := &mockRecorder{}

	job := newTestJob(repos, store, rec)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !rowDeleted {
		t.Error("row should be deleted even when the bytes are already gone")
	}
	if rec.recorded[0] != 1 {
		t.Errorf("recorded = %v, want [1]", rec.recorded)
	}
}

// 1件の失敗が残りの処理を止めないことを検証
func TestCleanupJob_Run_ContinuesPastFailures(t *testing.T) {
	var deletedIDs []string
	repos := &mockRepos{files: &mockFileRepo{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
			return []*model.File{
				{ID: "f1", UserID: "u1", Key: "bad"},
				{ID: "f2", UserID: "u1", Key: "good"},
			}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) (int64, error) {
			deletedIDs = append(deletedIDs, id)
			return 1, nil
		},
	}}
	store := &mockStore{removeFunc: func(userID, key string) error {
		if key == "bad" {
			return errors.New("permission denied")
		}
		return nil
	}}
	rec := &mockRecorder{}

	job := newTestJob(repos, store, rec)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(deletedIDs) != 1 || deletedIDs[0] != "f2" {
		t.Errorf("deletedIDs = %v, want [f2]", deletedIDs)
	}
	if rec.recorded[0] != 1 {
		t.Errorf("recorded = %v, want [1]", rec.recorded)
	}
}

// 一覧取得の失敗でジョブ全体がエラーになることを検証
func TestCleanupJob_Run_ListFailureIsFatal(t *testing.T) {
	repos := &mockRepos{files: &mockFileRepo{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
			return nil, errors.New("connection lost")
		},
	}}
	rec := &mockRecorder{}

	job := newTestJob(repos, &mockStore{}, rec)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.recorded) != 0 {
		t.Errorf("recorded = %v, want empty", rec.recorded)
	}
}

// 削除対象がない実行が冪等に成功することを検証
func TestCleanupJob_Run_NoExpiredFiles(t *testing.T) {
	repos := &mockRepos{files: &mockFileRepo{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
			return nil, nil
		},
	}}
	rec := &mockRecorder{}

	job := newTestJob(repos, &mockStore{}, rec)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rec.recorded) != 1 || rec.recorded[0] != 0 {
		t.Errorf("recorded = %v, want [0]", rec.recorded)
	}
}

// バッチ上限がリポジトリへ渡ることを検証
func TestCleanupJob_Run_PassesBatchSize(t *testing.T) {
	var gotLimit int
	repos := &mockRepos{files: &mockFileRepo{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.File, error) {
			gotLimit = limit
			return nil, nil
		},
	}}

	job := newTestJob(repos, &mockStore{}, &mockRecorder{})
	job.BatchSize = 42
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gotLimit != 42 {
		t.Errorf("limit = %d, want 42", gotLimit)
	}
}
