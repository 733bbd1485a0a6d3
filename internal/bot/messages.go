package bot

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"kashikari-backend/internal/lending"
)

// bot の口調（チュン）は既存のキャラクター設定に合わせている。
const (
	msgThanksOwner    = "返ってきてよかったチュン！"
	msgThanksBorrower = "返してくれてありがとチュン！"
	msgSadOwner1      = "悲しいチュン..."
	msgSadOwner2      = "早く返してって言ってくるチュン！"
	msgNudgeBorrower  = "早く返して欲しいチュン!\n（もし既に返してたら申し訳ないチュン...\n借りた側に通知解除してって言って欲しいチュン...)"
)

// 貸し借りと無関係な話しかけに返す定型文
var fillerMessages = []string{
	"チュンチュン！",
	"なんのことかわからないチュン...",
	"今日もいい天気チュン！",
	"貸し借りのことなら任せるチュン！",
	"おなかすいたチュン...",
}

func askAnswerMessage(tokens ReplyTokens) string {
	return fmt.Sprintf("「%s」か「%s」で答えて欲しいチュン。", tokens.Yes, tokens.No)
}

// reminderCard は1件の貸出に対するリマインドカードを組み立てる。
// 両方のボタンの送信テキスト末尾に空白区切りで貸出IDを付け、
// webhook側はその末尾トークンだけで返信を貸出に紐づけ直せる。
func reminderCard(l lending.Lending, tokens ReplyTokens) *linebot.FlexMessage {
	borrowerName := ""
	if l.BorrowerName != nil {
		borrowerName = *l.BorrowerName
	}
	altText := fmt.Sprintf("%sさんに貸した%s帰ってきたチュン？", borrowerName, l.Content)

	bubble := &linebot.BubbleContainer{
		Type: linebot.FlexContainerTypeBubble,
		Body: &linebot.BoxComponent{
			Type:   linebot.FlexComponentTypeBox,
			Layout: linebot.FlexBoxLayoutTypeVertical,
			Contents: []linebot.FlexComponent{
				&linebot.TextComponent{
					Type:   linebot.FlexComponentTypeText,
					Text:   altText,
					Weight: linebot.FlexTextWeightTypeBold,
					Wrap:   true,
				},
				&linebot.TextComponent{
					Type:  linebot.FlexComponentTypeText,
					Text:  fmt.Sprintf("返却期限: %s", l.Deadline.Format("2006-01-02")),
					Size:  linebot.FlexTextSizeTypeSm,
					Color: "#888888",
				},
			},
		},
		Footer: &linebot.BoxComponent{
			Type:   linebot.FlexComponentTypeBox,
			Layout: linebot.FlexBoxLayoutTypeHorizontal,
			Contents: []linebot.FlexComponent{
				&linebot.ButtonComponent{
					Type:   linebot.FlexComponentTypeButton,
					Style:  linebot.FlexButtonStyleTypePrimary,
					Action: linebot.NewMessageAction(tokens.Yes, tokens.Yes+" "+l.ID),
				},
				&linebot.ButtonComponent{
					Type:   linebot.FlexComponentTypeButton,
					Style:  linebot.FlexButtonStyleTypeSecondary,
					Action: linebot.NewMessageAction(tokens.No, tokens.No+" "+l.ID),
				},
			},
		},
	}

	return linebot.NewFlexMessage(altText, bubble)
}
