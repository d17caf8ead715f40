package gate

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// MemberGetter is the part of *tgbotapi.BotAPI the gate needs.
type MemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// TelegramLookup resolves membership with getChatMember.
type TelegramLookup struct {
	API MemberGetter
}

func (t TelegramLookup) Membership(_ context.Context, chatID string, userID int64) Membership {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return Unknown(errors.Wrapf(err, "bad chat id %q", chatID))
	}
	m, err := t.API.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userID},
	})
	if err != nil {
		return Unknown(err)
	}
	return Known(m.Status)
}
