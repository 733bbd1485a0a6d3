package lending

import "time"

// 貸出登録リクエスト
type CreateLendingRequest struct {
	Content string `json:"content" binding:"required"`
	// RFC3339 形式の文字列を想定
	Deadline string `json:"deadline" binding:"required"`
}

type CreateLendingResponse struct {
	LendingID string    `json:"lending_id"`
	Content   string    `json:"content"`
	Deadline  time.Time `json:"deadline"`
	CreatedAt time.Time `json:"created_at"`
}

// 貸出レスポンス
type LendingResponse struct {
	LendingID            string     `json:"lending_id"`
	OwnerID              string     `json:"owner_id"`
	OwnerName            string     `json:"owner_name"`
	BorrowerID           *string    `json:"borrower_id,omitempty"`
	BorrowerName         *string    `json:"borrower_name,omitempty"`
	Content              string     `json:"content"`
	Deadline             time.Time  `json:"deadline"`
	IsConfirmingReturned bool       `json:"is_confirming_returned"`
	ReturnedAt           *time.Time `json:"returned_at,omitempty"`
	SentURLToBorrower    bool       `json:"sent_url_to_borrower"`
	CreatedAt            time.Time  `json:"created_at"`
}

// 借主登録レスポンス
type RegisterBorrowerResult struct {
	LendingID string    `json:"lending_id"`
	Content   string    `json:"content"`
	Deadline  time.Time `json:"deadline"`
	OwnerName string    `json:"owner_name"`
	IsNewUser bool      `json:"is_new_user"`
}

type RegisterBorrowerResponse struct {
	Status string                 `json:"status"`
	Result RegisterBorrowerResult `json:"result"`
}

func (l *Lending) toDTO() LendingResponse {
	return LendingResponse{
		LendingID:            l.ID,
		OwnerID:              l.OwnerID,
		OwnerName:            l.OwnerName,
		BorrowerID:           l.BorrowerID,
		BorrowerName:         l.BorrowerName,
		Content:              l.Content,
		Deadline:             l.Deadline,
		IsConfirmingReturned: l.IsConfirmingReturned,
		ReturnedAt:           l.ReturnedAt,
		SentURLToBorrower:    l.SentURLToBorrower,
		CreatedAt:            l.CreatedAt,
	}
}
