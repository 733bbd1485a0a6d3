package users

import "time"

// User はLINEプラットフォーム上のユーザー。本サービスは参照と初回登録のみ行う。
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}
