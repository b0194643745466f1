// Package session はセッショントークンの発行・解決・失効を提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/repository"
)

// トークン衝突時の再生成上限。64桁hexの衝突は実質起きないため、
// 上限到達はトークン生成側の故障を意味する。
const maxTokenAttempts = 3

const tokenBytes = 32

// 衝突再試行用のセーブポイント名。
const issueSavepoint = "issue_session"

// Manager はセッションのライフサイクルを管理する。
// 各メソッドはqを受け取り、呼び出し側のトランザクションに参加する。
type Manager struct {
	repos  repository.Repositories
	logger *slog.Logger
}

// NewManager はManagerを生成する。
func NewManager(repos repository.Repositories, logger *slog.Logger) *Manager {
	return &Manager{repos: repos, logger: logger}
}

// Issue は新しいトークンでセッションを作成する。
// トークンの一意性はストレージ制約で保証し、衝突時は再生成して再試行する。
// 呼び出し側のトランザクション内で実行されるため、一意制約違反の後は
// トランザクション全体が中断状態になる。試行ごとにセーブポイントを張り、
// 衝突時はそこまで巻き戻してから再試行する。
func (m *Manager) Issue(ctx context.Context, q database.DBTX, userID string) (*model.Session, error) {
	sessions := m.repos.Sessions(q)

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session token: %w", err)
		}

		if _, err := q.ExecContext(ctx, "SAVEPOINT "+issueSavepoint); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		created, err := sessions.Create(ctx, userID, token)
		if err == nil {
			if _, err := q.ExecContext(ctx, "RELEASE SAVEPOINT "+issueSavepoint); err != nil {
				return nil, fmt.Errorf("failed to release savepoint: %w", err)
			}
			return created, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
		if _, err := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+issueSavepoint); err != nil {
			return nil, fmt.Errorf("failed to roll back to savepoint: %w", err)
		}

		m.logger.Warn("session token collision, retrying",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("failed to issue session: token collision persisted after %d attempts", maxTokenAttempts)
}

// ResolveOrCreate は既存セッションがあればそれを返し、なければ新規発行する。
// 再ログインで別デバイスのセッションを無効化しないための再利用方針。
func (m *Manager) ResolveOrCreate(ctx context.Context, q database.DBTX, userID string) (*model.Session, error) {
	existing, err := m.repos.Sessions(q).FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	return m.Issue(ctx, q, userID)
}

// Resolve はトークンからセッションを解決する。
// 該当レコードがない場合は失効済みトークンとしてAPIErrorを返す。
func (m *Manager) Resolve(ctx context.Context, q database.DBTX, token string) (*model.Session, error) {
	found, err := m.repos.Sessions(q).FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, model.NewSessionRecordAbsentError()
	}

	return found, nil
}

// Revoke はトークンに対応するセッションを削除する。
// 0行削除は既に失効済み（回復可能）、2行以上は一意制約の破れ（サーバー異常）。
func (m *Manager) Revoke(ctx context.Context, q database.DBTX, token string) error {
	affected, err := m.repos.Sessions(q).DeleteByToken(ctx, token)
	if err != nil {
		return err
	}

	switch {
	case affected == 0:
		return model.NewSessionRecordAbsentError()
	case affected > 1:
		return fmt.Errorf("session token uniqueness violated: deleted %d rows for one token", affected)
	}

	return nil
}

func generateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
