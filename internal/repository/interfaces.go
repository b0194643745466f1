// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/filedrop/internal/database"
	"github.com/hitoshi/filedrop/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。IDと作成日時はストレージが採番する。
	// 表示名の重複はストレージの一意制約違反として返る。
	Create(ctx context.Context, name string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindLoginByName は表示名でユーザーと資格情報をJOINして取得する。
	// 見つからない場合は(nil, nil, nil)を返す。
	FindLoginByName(ctx context.Context, name string) (*model.User, *model.Credential, error)

	// DeleteByID は指定IDのユーザーを削除し、削除行数を返す。
	DeleteByID(ctx context.Context, id string) (int64, error)
}

// CredentialRepository は資格情報の永続化インターフェース。
// 資格情報は登録時に一度だけ作成され、更新されることはない。
type CredentialRepository interface {
	// Create は資格情報を作成する。
	Create(ctx context.Context, cred *model.Credential) error

	// DeleteByUserID は指定ユーザーの資格情報を削除し、削除行数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。IDと作成日時はストレージが採番する。
	// トークンの重複はストレージの一意制約違反として返る。
	Create(ctx context.Context, userID, token string) (*model.Session, error)

	// FindByToken はトークン完全一致でセッションを取得する。
	// 見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// FindByUserID は指定ユーザーの有効なセッションを取得する。
	// 見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Session, error)

	// DeleteByToken はトークン一致のセッションを削除し、削除行数を返す。
	DeleteByToken(ctx context.Context, token string) (int64, error)

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// FileRepository はファイルメタデータの永続化インターフェース。
type FileRepository interface {
	// Create はファイルメタデータを作成する。IDはストレージが採番する。
	// キーの重複はストレージの一意制約違反として返る。
	Create(ctx context.Context, file *model.File) (*model.File, error)

	// FindByKey はキー完全一致でファイルを取得する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.File, error)

	// IncrementDownloads はダウンロードカウンタを1増やす。
	// 単一UPDATE文のため並行ルックアップでも加算は失われない。
	IncrementDownloads(ctx context.Context, id string) error

	// DeleteByID は指定IDのファイル行を削除し、削除行数を返す。
	DeleteByID(ctx context.Context, id string) (int64, error)

	// ListByUserID は指定ユーザーが所有する全ファイルを返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.File, error)

	// ListExpired はdelete_dateがnowより過去のファイルを最大limit件返す。
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.File, error)

	// DeleteByUserID は指定ユーザーの全ファイル行を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// Repositories は実行コンテキスト（*sql.DBまたは*sql.Tx）に束縛された
// リポジトリ群を生成するファクトリ。サービス層はトランザクション内では
// トランザクションに束縛されたリポジトリを取得して使う。
type Repositories interface {
	Users(q database.DBTX) UserRepository
	Credentials(q database.DBTX) CredentialRepository
	Sessions(q database.DBTX) SessionRepository
	Files(q database.DBTX) FileRepository
}

// Postgres はPostgreSQL実装のRepositoriesファクトリ。
type Postgres struct{}

// NewPostgres はPostgresファクトリを生成する。
func NewPostgres() *Postgres {
	return &Postgres{}
}

// Users はqに束縛されたUserRepositoryを返す。
func (p *Postgres) Users(q database.DBTX) UserRepository {
	return NewPostgresUserRepo(q)
}

// Credentials はqに束縛されたCredentialRepositoryを返す。
func (p *Postgres) Credentials(q database.DBTX) CredentialRepository {
	return NewPostgresCredentialRepo(q)
}

// Sessions はqに束縛されたSessionRepositoryを返す。
func (p *Postgres) Sessions(q database.DBTX) SessionRepository {
	return NewPostgresSessionRepo(q)
}

// Files はqに束縛されたFileRepositoryを返す。
func (p *Postgres) Files(q database.DBTX) FileRepository {
	return NewPostgresFileRepo(q)
}

// compile-time interface check
var _ Repositories = (*Postgres)(nil)
