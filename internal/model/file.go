package model

import "time"

// File はアップロードされたファイルのメタデータを表す。
// Keyは公開ダウンロードURLに使われる不透明な一意キー。
// DisplayNameはアップロード時の元ファイル名で、信頼できない入力として
// 扱うが、ダウンロード時にはバイト単位でそのまま返す。
type File struct {
	ID          string
	UserID      string
	Key         string
	DisplayName string
	UploadDate  time.Time
	DeleteDate  time.Time
	Downloads   int64
	Bytes       int64
}

// Expired はファイルが保持期限を過ぎているかを返す。
// delete_dateを過ぎたファイルは掃除ジョブの削除対象となる。
func (f *File) Expired(now time.Time) bool {
	return now.After(f.DeleteDate)
}
