package bot

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v7/linebot"
)

type Handler struct {
	svc *Service
	bot *linebot.Client
}

// RegisterWebhook はLINEからのコールバックを受ける口。認証はLINEの署名検証が担う。
func RegisterWebhook(r gin.IRoutes, svc *Service, client *linebot.Client) {
	h := &Handler{svc: svc, bot: client}
	r.POST("/line/webhook", h.Webhook)
}

// RegisterAdminRoutes は外部スケジューラから叩くスイープ起動口（要認証）。
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/bot/sweep", h.RunSweep)
}

func (h *Handler) Webhook(c *gin.Context) {
	events, err := h.bot.ParseRequest(c.Request)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusInternalServerError)
		return
	}

	for _, ev := range events {
		switch ev.Type {
		case linebot.EventTypeMessage:
			switch msg := ev.Message.(type) {
			case *linebot.TextMessage:
				te := TextEvent{
					ReplyToken: ev.ReplyToken,
					SenderID:   ev.Source.UserID,
					Text:       msg.Text,
				}
				if err := h.svc.HandleTextEvent(c.Request.Context(), te); err != nil {
					// ゲートウェイの再送を避けるため応答は200のまま、中身だけ記録する
					log.Printf("[WARN] webhook: %v", err)
				}
			default:
				// テキスト以外のメッセージは対象外
			}
		default:
			// follow/unfollow等は現状扱わない
		}
	}

	c.Status(http.StatusOK)
}

func (h *Handler) RunSweep(c *gin.Context) {
	if err := h.svc.RunReminderSweep(c.Request.Context(), time.Now().UTC()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
