// Package identity はユーザー登録・認証・退会のユースケースを提供する。
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/filedrop/internal/credential"
	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/repository"
	"github.com/hitoshi/filedrop/internal/session"
)

// FileStore はユーザー退会時のバイト列破棄に必要な操作。
type FileStore interface {
	// PurgeUser は指定ユーザーの保存領域（本置き場とスプール）を丸ごと削除する。
	PurgeUser(userID string) error
}

// PasswordHasher はパスワードのハッシュ生成と照合。credential.Hasherが実装する。
type PasswordHasher interface {
	Issue(password string) (hash []byte, salt string, err error)
	Verify(password, salt string, hash []byte) bool
}

// compile-time interface check
var _ PasswordHasher = (*credential.Hasher)(nil)

// ユーザー名不明時に照合へ渡すダミー資格情報。
// 実在ユーザーと同じ鍵導出を通すことで、応答時間から
// ユーザー名の有無を推定できないようにする。
var (
	decoySalt = "00000000000000000000000000000000"
	decoyHash = make([]byte, 32)
)

// Service はアカウントのライフサイクルを司る。
// 登録・認証・退会の各操作は1つのトランザクション内で完結し、
// 部分的に作られたアカウントが観測されることはない。
type Service struct {
	runner   database.TxRunner
	repos    repository.Repositories
	hasher   PasswordHasher
	sessions *session.Manager
	store    FileStore
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	runner database.TxRunner,
	repos repository.Repositories,
	hasher PasswordHasher,
	sessions *session.Manager,
	store FileStore,
	logger *slog.Logger,
) *Service {
	return &Service{
		runner:   runner,
		repos:    repos,
		hasher:   hasher,
		sessions: sessions,
		store:    store,
		logger:   logger,
	}
}

// Register は新規アカウントを作成し、発行したセッションを返す。
// パスワード確認の不一致はストレージに触れる前に弾く。
// ユーザー名の重複はストレージの一意制約で検出する。
func (s *Service) Register(ctx context.Context, name, passwordOne, passwordTwo string) (*model.Session, error) {
	if passwordOne != passwordTwo {
		return nil, model.NewPasswordMismatchError()
	}

	var created *model.Session
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		user, err := s.repos.Users(q).Create(ctx, name)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return model.NewDuplicateUsernameError(name)
			}
			return err
		}

		hash, salt, err := s.hasher.Issue(passwordOne)
		if err != nil {
			return err
		}
		cred := &model.Credential{UserID: user.ID, Hash: hash, Salt: salt}
		if err := s.repos.Credentials(q).Create(ctx, cred); err != nil {
			return err
		}

		created, err = s.sessions.Issue(ctx, q, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Login は資格情報を照合し、セッションを返す。
// ユーザー名不明とパスワード不一致は同じエラーで返し、
// アカウントの存在有無を外部から観測させない。
func (s *Service) Login(ctx context.Context, name, password string) (*model.Session, error) {
	var resolved *model.Session
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		user, cred, err := s.repos.Users(q).FindLoginByName(ctx, name)
		if err != nil {
			return err
		}
		if user == nil {
			// ダミー照合で実在時と同じ計算コストを支払う
			s.hasher.Verify(password, decoySalt, decoyHash)
			return model.NewInvalidCredentialsError()
		}
		if !s.hasher.Verify(password, cred.Salt, cred.Hash) {
			return model.NewInvalidCredentialsError()
		}

		resolved, err = s.sessions.ResolveOrCreate(ctx, q, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

// Logout はトークンに対応するセッションを失効させる。
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.runner.RunTx(ctx, func(q database.DBTX) error {
		return s.sessions.Revoke(ctx, q, token)
	})
}

// CurrentUser はトークンからセッションの持ち主を解決する。
// セッションはあるのにユーザー行がない状態は参照整合性の破れであり、
// 回復可能エラーではなくサーバー異常として返す。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	var user *model.User
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		sess, err := s.sessions.Resolve(ctx, q, token)
		if err != nil {
			return err
		}

		user, err = s.repos.Users(q).FindByID(ctx, sess.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("session %s references missing user %s", sess.ID, sess.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUser は指定IDのユーザーを返す。
// セッションは解決済みなのにユーザー行だけがない場合（並行退会の競合）、
// 失効済みセッションと同じエラーで返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user *model.User
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		var err error
		user, err = s.repos.Users(q).FindByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewSessionRecordAbsentError()
	}

	return user, nil
}

// Withdraw はアカウントと、そのユーザーが所有する全データを削除する。
// メタデータの削除は1トランザクションで行い、バイト列の破棄は
// コミット後に行う。破棄に失敗してもアカウント削除は成立しており、
// 残骸はログに記録するのみで呼び出し側へは伝播しない。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	err := s.runner.RunTx(ctx, func(q database.DBTX) error {
		if err := s.repos.Files(q).DeleteByUserID(ctx, userID); err != nil {
			return err
		}
		if err := s.repos.Sessions(q).DeleteByUserID(ctx, userID); err != nil {
			return err
		}
		if _, err := s.repos.Credentials(q).DeleteByUserID(ctx, userID); err != nil {
			return err
		}

		affected, err := s.repos.Users(q).DeleteByID(ctx, userID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("withdraw for missing user %s", userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.store.PurgeUser(userID); err != nil {
		s.logger.Error("failed to purge user storage after withdrawal",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
