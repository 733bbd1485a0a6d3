package lending

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// LendingStore は貸出レコードの永続化層。状態遷移メソッドはレコード単位で原子的であること。
type LendingStore interface {
	Insert(ctx context.Context, m *Lending) error
	GetByID(ctx context.Context, id string) (*Lending, error)
	AssociateBorrower(ctx context.Context, id, borrowerID string) (bool, error)
	MarkSentURL(ctx context.Context, id string) (bool, error)
	MarkReturned(ctx context.Context, id string, at time.Time) (*Lending, error)
	StartConfirming(ctx context.Context, id string) (bool, error)
	FinishConfirming(ctx context.Context, id string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Lending, error)
	ListByBorrower(ctx context.Context, borrowerID string) ([]Lending, error)
	ListDue(ctx context.Context, until time.Time) ([]Lending, error)
}

// UserDirectory はユーザーの初回登録と参照。Ensure は初回接触なら true を返す。
type UserDirectory interface {
	Ensure(ctx context.Context, id, displayName string) (bool, error)
}

// Actor はアクセストークンから解決された呼び出し元。
type Actor struct {
	ID   string
	Name string
}

// ===== Service本体 =====

type Service struct {
	store LendingStore
	users UserDirectory
	clock Clock
	id    IDGen
}

func NewService(store LendingStore, users UserDirectory) *Service {
	return &Service{
		store: store,
		users: users,
		clock: realClock{},
		id:    ulidGen{},
	}
}

// 貸出登録
func (s *Service) Create(ctx context.Context, actor Actor, req CreateLendingRequest) (*CreateLendingResponse, error) {
	if req.Content == "" {
		return nil, ErrInvalid("content is required")
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		return nil, ErrInvalid("deadline must be RFC3339")
	}
	deadline = deadline.UTC()

	now := s.clock.Now()
	// 当日指定を許容するため日単位で比較する
	if deadline.Before(now.Truncate(24 * time.Hour)) {
		return nil, ErrInvalid("deadline must not be in the past")
	}

	if _, err := s.users.Ensure(ctx, actor.ID, actor.Name); err != nil {
		return nil, err
	}

	id, err := s.id.New()
	if err != nil {
		return nil, err
	}

	m := &Lending{
		ID:        id,
		OwnerID:   actor.ID,
		Content:   req.Content,
		Deadline:  deadline,
		CreatedAt: now,
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}

	return &CreateLendingResponse{
		LendingID: m.ID,
		Content:   m.Content,
		Deadline:  m.Deadline,
		CreatedAt: m.CreatedAt,
	}, nil
}

// 借りた人へのURL送信済み登録。送信済みの再登録は no-op。
func (s *Service) RegisterSentURL(ctx context.Context, id string) error {
	ok, err := s.store.MarkSentURL(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// 既に送信済みか、レコードが存在しないかのどちらか
		if _, err := s.store.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Get は貸主・借主のガードなしの取得。bot経由の参照用。
func (s *Service) Get(ctx context.Context, id string) (*Lending, error) {
	return s.store.GetByID(ctx, id)
}

// Fetch は借主候補向けの取得。既に別ユーザーが借主ならエラー。
func (s *Service) Fetch(ctx context.Context, actor Actor, id string) (*LendingResponse, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.BorrowerID != nil && *m.BorrowerID != actor.ID {
		return nil, ErrBorrowerAlreadyExists()
	}
	resp := m.toDTO()
	return &resp, nil
}

// 借りた人の登録。borrower_id は一度だけ設定される（first writer wins）。
// 同一ユーザーの再登録は冪等に成功する。
func (s *Service) Associate(ctx context.Context, actor Actor, id string) (*RegisterBorrowerResponse, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.BorrowerID != nil && *m.BorrowerID != actor.ID {
		return nil, ErrBorrowerAlreadyAssociated()
	}

	isNew, err := s.users.Ensure(ctx, actor.ID, actor.Name)
	if err != nil {
		return nil, err
	}

	if m.BorrowerID == nil {
		ok, err := s.store.AssociateBorrower(ctx, id, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// CASに負けた。勝者が自分自身でなければ紐づけ競合。
			m, err = s.store.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if m.BorrowerID == nil || *m.BorrowerID != actor.ID {
				return nil, ErrBorrowerAlreadyAssociated()
			}
		}
	}

	return &RegisterBorrowerResponse{
		Status: "success",
		Result: RegisterBorrowerResult{
			LendingID: m.ID,
			Content:   m.Content,
			Deadline:  m.Deadline,
			OwnerName: m.OwnerName,
			IsNewUser: isNew,
		},
	}, nil
}

func (s *Service) IsValidOwner(ctx context.Context, id, userID string) (bool, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return m.OwnerID == userID, nil
}

// 返却登録。二重登録は ALREADY_RETURNED で弾く（returned_at は上書きされない）。
func (s *Service) RegisterReturn(ctx context.Context, id string) (*LendingResponse, error) {
	m, err := s.store.MarkReturned(ctx, id, s.clock.Now())
	if err != nil {
		if HasCode(err, CodeAlreadyReturned) {
			// 行が存在しない場合と区別する
			if _, gerr := s.store.GetByID(ctx, id); gerr != nil {
				return nil, gerr
			}
		}
		return nil, err
	}
	resp := m.toDTO()
	return &resp, nil
}

// 返却報告（front door 用）。貸主以外からの報告は INVALID_OWNER。
func (s *Service) ReportReturn(ctx context.Context, actor Actor, id string) (*LendingResponse, error) {
	ok, err := s.IsValidOwner(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOwner()
	}
	return s.RegisterReturn(ctx, id)
}

// 返却確認の開始。OPEN_ASSOCIATED 以外からは遷移しない（戻り値 false）。
func (s *Service) StartConfirming(ctx context.Context, id string) (bool, error) {
	return s.store.StartConfirming(ctx, id)
}

// 返却確認の終了。確認中でなければ no-op。
func (s *Service) FinishConfirming(ctx context.Context, id string) error {
	_, err := s.store.FinishConfirming(ctx, id)
	return err
}

// 貸したもの一覧（登録順）
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]LendingResponse, error) {
	ms, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return toDTOs(ms), nil
}

// 借りたもの一覧（登録順）
func (s *Service) ListByBorrower(ctx context.Context, borrowerID string) ([]LendingResponse, error) {
	ms, err := s.store.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	return toDTOs(ms), nil
}

// DueForReminder は期限が until 以前のリマインド対象を貸主ごとにまとめて返す。
// 確認中・返却済みの貸出は選択条件から外れるため含まれない。
func (s *Service) DueForReminder(ctx context.Context, until time.Time) (map[string][]Lending, error) {
	ms, err := s.store.ListDue(ctx, until)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Lending, len(ms))
	for _, m := range ms {
		grouped[m.OwnerID] = append(grouped[m.OwnerID], m)
	}
	return grouped, nil
}

func toDTOs(ms []Lending) []LendingResponse {
	out := make([]LendingResponse, 0, len(ms))
	for i := range ms {
		out = append(out, ms[i].toDTO())
	}
	return out
}
