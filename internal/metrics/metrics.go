package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SweepRuns はリマインドスイープの実行回数。
	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kashikari_sweep_runs_total",
		Help: "Number of reminder sweep executions.",
	})

	// RemindersSent は送信に成功したリマインドカードの枚数。
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kashikari_reminders_sent_total",
		Help: "Number of reminder cards delivered to owners.",
	})

	// PushFailures はゲートウェイへの送信失敗数。状態遷移は巻き戻さない。
	PushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kashikari_push_failures_total",
		Help: "Number of failed outbound message deliveries.",
	})

	// RepliesHandled は受信テキストの処理結果別カウント。
	RepliesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kashikari_replies_handled_total",
		Help: "Number of inbound replies by outcome.",
	}, []string{"outcome"})
)

// 処理結果ラベル
const (
	OutcomeChatter  = "chatter"
	OutcomeReturned = "returned"
	OutcomeStillOut = "still_out"
	OutcomeUnknown  = "unknown_keyword"
	OutcomeError    = "error"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
