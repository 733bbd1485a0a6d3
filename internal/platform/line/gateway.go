package line

import (
	"context"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"golang.org/x/time/rate"
)

// Gateway はチャット基盤へのメッセージ送信口。botサービスはこれ越しにしか送信しない。
type Gateway interface {
	Reply(ctx context.Context, replyToken string, msgs ...linebot.SendingMessage) error
	Push(ctx context.Context, to string, msgs ...linebot.SendingMessage) error
}

type Client struct {
	bot     *linebot.Client
	limiter *rate.Limiter
}

func NewClient(bot *linebot.Client) *Client {
	// LINEのMessaging APIレート制限に収まるよう push を絞る
	return &Client{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (c *Client) Reply(ctx context.Context, replyToken string, msgs ...linebot.SendingMessage) error {
	_, err := c.bot.ReplyMessage(replyToken, msgs...).WithContext(ctx).Do()
	return err
}

func (c *Client) Push(ctx context.Context, to string, msgs ...linebot.SendingMessage) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.PushMessage(to, msgs...).WithContext(ctx).Do()
	return err
}
