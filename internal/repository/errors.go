package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATEコード。
const uniqueViolation = "23505"

// IsUniqueViolation はエラーが一意制約違反かどうかを判定する。
// トークン・キー生成のリトライ判定と、ユーザー名重複の検出に使う。
// 一意性チェックは事前のSELECTではなくストレージ制約に任せることで、
// check-then-insertの競合窓をなくしている。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
