package bot

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"kashikari-backend/internal/lending"
	"kashikari-backend/internal/metrics"
	"kashikari-backend/internal/platform/line"
)

// LendingAPI は貸出ライフサイクルエンジンのうち bot が使う操作。
type LendingAPI interface {
	Get(ctx context.Context, id string) (*lending.Lending, error)
	RegisterReturn(ctx context.Context, id string) (*lending.LendingResponse, error)
	FinishConfirming(ctx context.Context, id string) error
	StartConfirming(ctx context.Context, id string) (bool, error)
	DueForReminder(ctx context.Context, until time.Time) (map[string][]lending.Lending, error)
}

// ReplyTokens は返信として解釈するキーワード。設定で差し替え可能。
type ReplyTokens struct {
	Yes string
	No  string
}

type replyKind int

const (
	replyReturned replyKind = iota + 1
	replyStillOut
)

// TextEvent は受信イベントのうちテキストメッセージだけを表す閉じた型。
type TextEvent struct {
	ReplyToken string
	SenderID   string
	Text       string
}

type Service struct {
	lendings  LendingAPI
	gw        line.Gateway
	tokens    ReplyTokens
	actions   map[string]replyKind
	lookahead time.Duration

	// filler の選択。テストで固定できるよう差し替え可能にしてある。
	pick func(n int) int
}

func NewService(lendings LendingAPI, gw line.Gateway, tokens ReplyTokens, lookahead time.Duration) *Service {
	return &Service{
		lendings: lendings,
		gw:       gw,
		tokens:   tokens,
		actions: map[string]replyKind{
			tokens.Yes: replyReturned,
			tokens.No:  replyStillOut,
		},
		lookahead: lookahead,
		pick:      rand.Intn,
	}
}

// HandleTextEvent は返信プロトコル（"<キーワード> <貸出ID>"）を解釈して状態を進める。
// 貸し借りと無関係な入力は常に定型文で受け流し、エラーにはしない。
func (s *Service) HandleTextEvent(ctx context.Context, ev TextEvent) error {
	fields := strings.Fields(ev.Text)
	if len(fields) != 2 {
		return s.replyFiller(ctx, ev.ReplyToken)
	}
	keyword, lendingID := fields[0], fields[1]

	l, err := s.lendings.Get(ctx, lendingID)
	if err != nil {
		metrics.RepliesHandled.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("fetch lending %s: %w", lendingID, err)
	}

	// 確認中でない貸出への返信は、キーワードが一致していても雑談扱い。
	// 重複配送された「はい」もここに落ちるので二重クローズは起きない。
	if !l.IsConfirmingReturned {
		return s.replyFiller(ctx, ev.ReplyToken)
	}

	switch s.actions[keyword] {
	case replyReturned:
		return s.handleReturned(ctx, ev, l)
	case replyStillOut:
		return s.handleStillOut(ctx, ev, l)
	default:
		metrics.RepliesHandled.WithLabelValues(metrics.OutcomeUnknown).Inc()
		return s.reply(ctx, ev.ReplyToken, linebot.NewTextMessage(askAnswerMessage(s.tokens)))
	}
}

func (s *Service) handleReturned(ctx context.Context, ev TextEvent, l *lending.Lending) error {
	// 送信失敗は状態遷移を妨げない（ベストエフォート）
	if err := s.reply(ctx, ev.ReplyToken, linebot.NewTextMessage(msgThanksOwner)); err != nil {
		log.Printf("[WARN] bot: reply failed: %v", err)
	}
	if l.BorrowerID != nil {
		if err := s.gw.Push(ctx, *l.BorrowerID, linebot.NewTextMessage(msgThanksBorrower)); err != nil {
			metrics.PushFailures.Inc()
			log.Printf("[WARN] bot: push to borrower failed: %v", err)
		}
	}

	if _, err := s.lendings.RegisterReturn(ctx, l.ID); err != nil {
		// 返信の重複やスイープとの競合で既に閉じていた場合は吸収する
		if !lending.HasCode(err, lending.CodeAlreadyReturned) {
			metrics.RepliesHandled.WithLabelValues(metrics.OutcomeError).Inc()
			return fmt.Errorf("register return %s: %w", l.ID, err)
		}
	}
	if err := s.lendings.FinishConfirming(ctx, l.ID); err != nil {
		metrics.RepliesHandled.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("finish confirming %s: %w", l.ID, err)
	}

	metrics.RepliesHandled.WithLabelValues(metrics.OutcomeReturned).Inc()
	return nil
}

func (s *Service) handleStillOut(ctx context.Context, ev TextEvent, l *lending.Lending) error {
	if err := s.reply(ctx, ev.ReplyToken,
		linebot.NewTextMessage(msgSadOwner1),
		linebot.NewTextMessage(msgSadOwner2),
	); err != nil {
		log.Printf("[WARN] bot: reply failed: %v", err)
	}
	if l.BorrowerID != nil {
		if err := s.gw.Push(ctx, *l.BorrowerID, linebot.NewTextMessage(msgNudgeBorrower)); err != nil {
			metrics.PushFailures.Inc()
			log.Printf("[WARN] bot: push to borrower failed: %v", err)
		}
	}

	// returned_at は触らず確認中フラグだけ下ろす。期限超過のままなら次のスイープで再度対象になる。
	if err := s.lendings.FinishConfirming(ctx, l.ID); err != nil {
		metrics.RepliesHandled.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("finish confirming %s: %w", l.ID, err)
	}

	metrics.RepliesHandled.WithLabelValues(metrics.OutcomeStillOut).Inc()
	return nil
}

func (s *Service) replyFiller(ctx context.Context, replyToken string) error {
	metrics.RepliesHandled.WithLabelValues(metrics.OutcomeChatter).Inc()
	msg := fillerMessages[s.pick(len(fillerMessages))]
	return s.reply(ctx, replyToken, linebot.NewTextMessage(msg))
}

func (s *Service) reply(ctx context.Context, replyToken string, msgs ...linebot.SendingMessage) error {
	return s.gw.Reply(ctx, replyToken, msgs...)
}

// RunReminderSweep は期限を迎えた貸出を確認中に遷移させ、貸主ごとに1回のpushで
// カードをまとめて送る。確認中への遷移が成立した貸出だけ通知するため、
// 同時・再実行されたスイープが同じ貸出を二重通知することはない。
func (s *Service) RunReminderSweep(ctx context.Context, now time.Time) error {
	metrics.SweepRuns.Inc()

	due, err := s.lendings.DueForReminder(ctx, now.Add(s.lookahead))
	if err != nil {
		return fmt.Errorf("fetch due lendings: %w", err)
	}

	for ownerID, ls := range due {
		var msgs []linebot.SendingMessage
		for _, l := range ls {
			ok, err := s.lendings.StartConfirming(ctx, l.ID)
			if err != nil {
				log.Printf("[WARN] sweep: start confirming %s: %v", l.ID, err)
				continue
			}
			if !ok {
				// 別のスイープか返信と競合した。通知は勝者に任せる。
				continue
			}
			msgs = append(msgs, reminderCard(l, s.tokens))
		}
		if len(msgs) == 0 {
			continue
		}
		if err := s.gw.Push(ctx, ownerID, msgs...); err != nil {
			// 遷移済みの状態は巻き戻さない
			metrics.PushFailures.Inc()
			log.Printf("[WARN] sweep: push to %s: %v", ownerID, err)
			continue
		}
		metrics.RemindersSent.Add(float64(len(msgs)))
	}
	return nil
}
