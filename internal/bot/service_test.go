package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"kashikari-backend/internal/lending"
)

// --- モック ---

type mockLendings struct {
	getFn              func(ctx context.Context, id string) (*lending.Lending, error)
	registerReturnFn   func(ctx context.Context, id string) (*lending.LendingResponse, error)
	finishConfirmingFn func(ctx context.Context, id string) error
	startConfirmingFn  func(ctx context.Context, id string) (bool, error)
	dueForReminderFn   func(ctx context.Context, until time.Time) (map[string][]lending.Lending, error)

	registerReturnCalls   []string
	finishConfirmingCalls []string
	startConfirmingCalls  []string
}

func (m *mockLendings) Get(ctx context.Context, id string) (*lending.Lending, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, lending.ErrNotFound("lending not found")
}

func (m *mockLendings) RegisterReturn(ctx context.Context, id string) (*lending.LendingResponse, error) {
	m.registerReturnCalls = append(m.registerReturnCalls, id)
	if m.registerReturnFn != nil {
		return m.registerReturnFn(ctx, id)
	}
	return &lending.LendingResponse{LendingID: id}, nil
}

func (m *mockLendings) FinishConfirming(ctx context.Context, id string) error {
	m.finishConfirmingCalls = append(m.finishConfirmingCalls, id)
	if m.finishConfirmingFn != nil {
		return m.finishConfirmingFn(ctx, id)
	}
	return nil
}

func (m *mockLendings) StartConfirming(ctx context.Context, id string) (bool, error) {
	m.startConfirmingCalls = append(m.startConfirmingCalls, id)
	if m.startConfirmingFn != nil {
		return m.startConfirmingFn(ctx, id)
	}
	return true, nil
}

func (m *mockLendings) DueForReminder(ctx context.Context, until time.Time) (map[string][]lending.Lending, error) {
	if m.dueForReminderFn != nil {
		return m.dueForReminderFn(ctx, until)
	}
	return map[string][]lending.Lending{}, nil
}

type sentCall struct {
	to   string
	msgs []linebot.SendingMessage
}

type mockGateway struct {
	replies  []sentCall
	pushes   []sentCall
	replyErr error
	pushErr  error
}

func (g *mockGateway) Reply(_ context.Context, replyToken string, msgs ...linebot.SendingMessage) error {
	g.replies = append(g.replies, sentCall{to: replyToken, msgs: msgs})
	return g.replyErr
}

func (g *mockGateway) Push(_ context.Context, to string, msgs ...linebot.SendingMessage) error {
	g.pushes = append(g.pushes, sentCall{to: to, msgs: msgs})
	return g.pushErr
}

// --- ヘルパー ---

var testTokens = ReplyTokens{Yes: "はい", No: "いいえ"}

func newTestBot(ls *mockLendings, gw *mockGateway) *Service {
	svc := NewService(ls, gw, testTokens, 0)
	svc.pick = func(n int) int { return 0 }
	return svc
}

func borrowerIDPtr(id string) *string { return &id }

func confirmingLending(id string) *lending.Lending {
	return &lending.Lending{
		ID:                   id,
		OwnerID:              "U-owner",
		BorrowerID:           borrowerIDPtr("U-borrower"),
		Content:              "傘",
		Deadline:             time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		IsConfirmingReturned: true,
	}
}

func textOf(t *testing.T, msg linebot.SendingMessage) string {
	t.Helper()
	tm, ok := msg.(*linebot.TextMessage)
	if !ok {
		t.Fatalf("message is %T, want *linebot.TextMessage", msg)
	}
	return tm.Text
}

var event = TextEvent{ReplyToken: "reply-token", SenderID: "U-owner"}

// --- テスト ---

// トークン数が2以外の入力は状態を変えず定型文を返す。
func TestHandleTextEvent_Chatter(t *testing.T) {
	for _, text := range []string{"はい", "こんにちは", "はい LID001 おまけ", "   "} {
		t.Run(text, func(t *testing.T) {
			ls := &mockLendings{}
			gw := &mockGateway{}
			svc := newTestBot(ls, gw)

			ev := event
			ev.Text = text
			if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
				t.Fatalf("HandleTextEvent returned error: %v", err)
			}

			if len(gw.replies) != 1 {
				t.Fatalf("replies = %d, want 1", len(gw.replies))
			}
			if got := textOf(t, gw.replies[0].msgs[0]); got != fillerMessages[0] {
				t.Errorf("reply = %q, want filler %q", got, fillerMessages[0])
			}
			if len(ls.registerReturnCalls)+len(ls.finishConfirmingCalls) != 0 {
				t.Error("state was mutated on chatter input")
			}
		})
	}
}

// 未知の貸出IDはエラーとして呼び出し元へ伝える（握りつぶさない）。
func TestHandleTextEvent_UnknownLending(t *testing.T) {
	ls := &mockLendings{}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	ev := event
	ev.Text = "はい LID999"
	err := svc.HandleTextEvent(context.Background(), ev)
	if err == nil {
		t.Fatal("expected error for unknown lending id")
	}
	if !lending.HasCode(err, lending.CodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
	if len(gw.replies) != 0 {
		t.Errorf("replies = %d, want 0", len(gw.replies))
	}
}

// 確認中でない貸出への返信はキーワードが一致しても雑談扱い。
func TestHandleTextEvent_NotConfirming(t *testing.T) {
	l := confirmingLending("LID001")
	l.IsConfirmingReturned = false
	ls := &mockLendings{
		getFn: func(_ context.Context, id string) (*lending.Lending, error) { return l, nil },
	}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	ev := event
	ev.Text = "はい LID001"
	if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTextEvent returned error: %v", err)
	}

	if len(ls.registerReturnCalls) != 0 || len(ls.finishConfirmingCalls) != 0 {
		t.Error("state was mutated for a non-confirming lending")
	}
	if len(gw.replies) != 1 || textOf(t, gw.replies[0].msgs[0]) != fillerMessages[0] {
		t.Error("expected a single filler reply")
	}
}

// 肯定返信: お礼を返し、借主に通知し、返却登録と確認終了を行う。
func TestHandleTextEvent_Affirmative(t *testing.T) {
	l := confirmingLending("LID001")
	ls := &mockLendings{
		getFn: func(_ context.Context, id string) (*lending.Lending, error) { return l, nil },
	}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	ev := event
	ev.Text = "はい LID001"
	if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTextEvent returned error: %v", err)
	}

	if len(gw.replies) != 1 || textOf(t, gw.replies[0].msgs[0]) != msgThanksOwner {
		t.Error("expected thank-you reply to owner")
	}
	if len(gw.pushes) != 1 || gw.pushes[0].to != "U-borrower" {
		t.Fatalf("pushes = %+v, want one push to borrower", gw.pushes)
	}
	if textOf(t, gw.pushes[0].msgs[0]) != msgThanksBorrower {
		t.Error("expected thank-you push to borrower")
	}
	if len(ls.registerReturnCalls) != 1 || ls.registerReturnCalls[0] != "LID001" {
		t.Errorf("registerReturnCalls = %v", ls.registerReturnCalls)
	}
	if len(ls.finishConfirmingCalls) != 1 {
		t.Errorf("finishConfirmingCalls = %v", ls.finishConfirmingCalls)
	}
}

// 同じ肯定返信が二重配送されても、二度目は雑談扱いになり二重クローズしない。
func TestHandleTextEvent_DuplicateAffirmative(t *testing.T) {
	l := confirmingLending("LID001")
	ls := &mockLendings{
		getFn: func(_ context.Context, id string) (*lending.Lending, error) { return l, nil },
	}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	ev := event
	ev.Text = "はい LID001"
	if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	// 1回目の処理で確認中フラグは下りている
	l.IsConfirmingReturned = false

	if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(ls.registerReturnCalls) != 1 {
		t.Errorf("registerReturnCalls = %v, want exactly one", ls.registerReturnCalls)
	}
	if got := textOf(t, gw.replies[1].msgs[0]); got != fillerMessages[0] {
		t.Errorf("second reply = %q, want filler", got)
	}
}

// 否定返信: 二部構成の返信と借主への催促のみ。returned_at は設定しない。
func TestHandleTextEvent_Negative(t *testing.T) {
	l := confirmingLending("LID001")
	ls := &mockLendings{
		getFn: func(_ context.Context, id string) (*lending.Lending, error) { return l, nil },
	}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	ev := event
	ev.Text = "いいえ LID001"
	if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTextEvent returned error: %v", err)
	}

	if len(gw.replies) != 1 || len(gw.replies[0].msgs) != 2 {
		t.Fatalf("expected one two-part reply, got %+v", gw.replies)
	}
	if textOf(t, gw.replies[0].msgs[0]) != msgSadOwner1 || textOf(t, gw.replies[0].msgs[1]) != msgSadOwner2 {
		t.Error("unexpected reply texts")
	}
	if len(gw.pushes) != 1 || textOf(t, gw.pushes[0].msgs[0]) != msgNudgeBorrower {
		t.Error("expected nudge push to borrower")
	}
	if len(ls.registerReturnCalls) != 0 {
		t.Error("negative reply must not register a return")
	}
	if len(ls.finishConfirmingCalls) != 1 {
		t.Errorf("finishConfirmingCalls = %v, want one", ls.finishConfirmingCalls)
	}
}

// 認識できないキーワードは案内だけ返して状態を変えない。
func TestHandleTextEvent_UnknownKeyword(t *testing.T) {
	l := confirmingLending("LID001")
	ls := &mockLendings{
		getFn: func(_ context.Context, id string) (*lending.Lending, error) { return l, nil },
	}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	ev := event
	ev.Text = "たぶん LID001"
	if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTextEvent returned error: %v", err)
	}

	want := askAnswerMessage(testTokens)
	if len(gw.replies) != 1 || textOf(t, gw.replies[0].msgs[0]) != want {
		t.Errorf("reply = %+v, want %q", gw.replies, want)
	}
	if len(ls.registerReturnCalls)+len(ls.finishConfirmingCalls) != 0 {
		t.Error("state was mutated on unknown keyword")
	}
}

// 送信失敗は状態遷移を妨げない。
func TestHandleTextEvent_PushFailureDoesNotBlockTransition(t *testing.T) {
	l := confirmingLending("LID001")
	ls := &mockLendings{
		getFn: func(_ context.Context, id string) (*lending.Lending, error) { return l, nil },
	}
	gw := &mockGateway{replyErr: context.DeadlineExceeded, pushErr: context.DeadlineExceeded}
	svc := newTestBot(ls, gw)

	ev := event
	ev.Text = "はい LID001"
	if err := svc.HandleTextEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTextEvent returned error: %v", err)
	}
	if len(ls.registerReturnCalls) != 1 || len(ls.finishConfirmingCalls) != 1 {
		t.Error("transition must complete despite delivery failures")
	}
}

// スイープ: 貸主ごとに1回のpushで、確認中に遷移できた貸出のカードだけ送る。
func TestRunReminderSweep(t *testing.T) {
	name := "かりて"
	due := map[string][]lending.Lending{
		"U-owner1": {
			{ID: "LID001", OwnerID: "U-owner1", BorrowerID: borrowerIDPtr("U-b1"), BorrowerName: &name, Content: "傘"},
			{ID: "LID002", OwnerID: "U-owner1", BorrowerID: borrowerIDPtr("U-b2"), Content: "本"},
		},
		"U-owner2": {
			{ID: "LID003", OwnerID: "U-owner2", BorrowerID: borrowerIDPtr("U-b3"), Content: "カメラ"},
		},
	}
	ls := &mockLendings{
		dueForReminderFn: func(_ context.Context, _ time.Time) (map[string][]lending.Lending, error) {
			return due, nil
		},
	}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	if err := svc.RunReminderSweep(context.Background(), time.Now()); err != nil {
		t.Fatalf("RunReminderSweep returned error: %v", err)
	}

	if len(ls.startConfirmingCalls) != 3 {
		t.Errorf("startConfirmingCalls = %v, want 3", ls.startConfirmingCalls)
	}
	if len(gw.pushes) != 2 {
		t.Fatalf("pushes = %d, want 2 (one per owner)", len(gw.pushes))
	}
	byOwner := map[string]sentCall{}
	for _, p := range gw.pushes {
		byOwner[p.to] = p
	}
	if len(byOwner["U-owner1"].msgs) != 2 || len(byOwner["U-owner2"].msgs) != 1 {
		t.Errorf("per-owner card counts wrong: %+v", byOwner)
	}

	// カードのボタンは "<キーワード> <貸出ID>" を送り返す
	flex, ok := byOwner["U-owner1"].msgs[0].(*linebot.FlexMessage)
	if !ok {
		t.Fatalf("message is %T, want *linebot.FlexMessage", byOwner["U-owner1"].msgs[0])
	}
	bubble, ok := flex.Contents.(*linebot.BubbleContainer)
	if !ok {
		t.Fatalf("contents is %T, want *linebot.BubbleContainer", flex.Contents)
	}
	if len(bubble.Footer.Contents) != 2 {
		t.Fatalf("footer buttons = %d, want 2", len(bubble.Footer.Contents))
	}
	for i, want := range []string{"はい LID001", "いいえ LID001"} {
		btn, ok := bubble.Footer.Contents[i].(*linebot.ButtonComponent)
		if !ok {
			t.Fatalf("footer[%d] is %T, want *linebot.ButtonComponent", i, bubble.Footer.Contents[i])
		}
		action, ok := btn.Action.(*linebot.MessageAction)
		if !ok {
			t.Fatalf("action is %T, want *linebot.MessageAction", btn.Action)
		}
		if action.Text != want {
			t.Errorf("button[%d].Text = %q, want %q", i, action.Text, want)
		}
		if !strings.HasSuffix(action.Text, " LID001") {
			t.Errorf("button payload must end with the lending id: %q", action.Text)
		}
	}
	if !strings.Contains(flex.AltText, "かりて") || !strings.Contains(flex.AltText, "傘") {
		t.Errorf("alt text = %q, want borrower name and content", flex.AltText)
	}
}

// 確認中への遷移に負けた貸出は通知しない（再実行・並行スイープで二重通知しない）。
func TestRunReminderSweep_SkipsAlreadyConfirming(t *testing.T) {
	due := map[string][]lending.Lending{
		"U-owner1": {
			{ID: "LID001", OwnerID: "U-owner1", BorrowerID: borrowerIDPtr("U-b1"), Content: "傘"},
		},
	}
	ls := &mockLendings{
		dueForReminderFn: func(_ context.Context, _ time.Time) (map[string][]lending.Lending, error) {
			return due, nil
		},
		startConfirmingFn: func(_ context.Context, _ string) (bool, error) { return false, nil },
	}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	if err := svc.RunReminderSweep(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(gw.pushes) != 0 {
		t.Errorf("pushes = %d, want 0", len(gw.pushes))
	}
}

// 対象なしのスイープは何も送らない。
func TestRunReminderSweep_NothingDue(t *testing.T) {
	ls := &mockLendings{}
	gw := &mockGateway{}
	svc := newTestBot(ls, gw)

	if err := svc.RunReminderSweep(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(gw.pushes) != 0 || len(ls.startConfirmingCalls) != 0 {
		t.Error("sweep with nothing due must be a no-op")
	}
}

// push失敗でもスイープ全体は継続し、エラーにならない。
func TestRunReminderSweep_PushFailure(t *testing.T) {
	due := map[string][]lending.Lending{
		"U-owner1": {
			{ID: "LID001", OwnerID: "U-owner1", BorrowerID: borrowerIDPtr("U-b1"), Content: "傘"},
		},
	}
	ls := &mockLendings{
		dueForReminderFn: func(_ context.Context, _ time.Time) (map[string][]lending.Lending, error) {
			return due, nil
		},
	}
	gw := &mockGateway{pushErr: context.DeadlineExceeded}
	svc := newTestBot(ls, gw)

	if err := svc.RunReminderSweep(context.Background(), time.Now()); err != nil {
		t.Fatalf("sweep must not fail on push errors: %v", err)
	}
	// 状態は遷移済みのまま（巻き戻さない）
	if len(ls.startConfirmingCalls) != 1 {
		t.Error("start confirming should have been attempted once")
	}
}
