package database

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX は*sql.DBと*sql.Txの共通部分を抽象化するインターフェース。
// リポジトリはDBTXを受け取ることで、単独クエリとしてもトランザクション
// 内の1ステップとしても同じコードで動作する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxRunner はトランザクション境界の実行を抽象化するインターフェース。
// サービス層はTxRunner越しにトランザクションを張ることで、
// テストでは実DBなしのフェイクに差し替えられる。
type TxRunner interface {
	// RunTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバック、そうでなければコミットする。
	RunTx(ctx context.Context, fn func(q DBTX) error) error
}

// SQLRunner は*sql.DBを使ったTxRunnerの実装。
type SQLRunner struct {
	db *sql.DB
}

// NewSQLRunner はSQLRunnerを生成する。
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// RunTx はfnを1つのトランザクション内で実行する。
// panicが起きた場合もロールバックしてから再panicする。
func (r *SQLRunner) RunTx(ctx context.Context, fn func(q DBTX) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ TxRunner = (*SQLRunner)(nil)
