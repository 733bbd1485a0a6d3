package lending

import "time"

// Lending は lendings テーブルの1行を表す。
// OwnerName / BorrowerName は読み取り時に users を JOIN して埋まる表示用フィールド。
type Lending struct {
	ID                   string
	OwnerID              string
	BorrowerID           *string
	Content              string
	Deadline             time.Time
	IsConfirmingReturned bool
	ReturnedAt           *time.Time
	SentURLToBorrower    bool
	CreatedAt            time.Time

	OwnerName    string
	BorrowerName *string
}

// Closed は返却済み（終端状態）かどうか。
func (l *Lending) Closed() bool { return l.ReturnedAt != nil }

// Associated は借主が紐づいているかどうか。
func (l *Lending) Associated() bool { return l.BorrowerID != nil }
