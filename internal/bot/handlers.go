package bot

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Armin-kho/deal-gate-bot/internal/db"
	"github.com/Armin-kho/deal-gate-bot/internal/render"
	"github.com/Armin-kho/deal-gate-bot/internal/session"
	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

func (a *App) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// Only private chats; group chatter and channel posts are ignored.
	if msg.From == nil || msg.Chat == nil || msg.Chat.Type != "private" {
		return
	}
	userID := msg.From.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			a.onStart(ctx, msg)
		case "admin":
			if a.isAdmin(userID) {
				a.sendAdminPanel(userID, 0)
			}
		case "set_amzn":
			if a.isAdmin(userID) {
				a.onSetAmazonTag(msg)
			}
		case "set_cue":
			if a.isAdmin(userID) {
				a.onSetCue(msg)
			}
		}
		return
	}

	if !a.isAdmin(userID) {
		return
	}

	kind := a.sess.Current(userID)
	switch {
	case kind == session.Broadcasting:
		a.onBroadcastPayload(ctx, msg)
	case kind.AwaitsForward():
		if msg.ForwardFromChat == nil {
			// Not a channel forward; keep waiting.
			return
		}
		a.onForward(kind, msg)
	}
}

func (a *App) onStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if added, err := a.store.RegisterUser(userID); err != nil {
		a.log.Warn("register user", zap.Int64("user", userID), zap.Error(err))
	} else if added {
		a.log.Info("new user", zap.Int64("user", userID))
	}

	decision := a.gate.Check(ctx, userID, a.store.GateSet())
	if decision.Allowed {
		a.reply(msg.Chat.ID, render.Welcome)
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, render.AccessDenied)
	if kb, ok := joinKeyboard(decision.Join); ok {
		out.ReplyMarkup = kb
	}
	if _, err := a.api.Send(out); err != nil {
		a.log.Warn("send access denied", zap.Int64("user", userID), zap.Error(err))
	}
}

// joinKeyboard has one URL button per channel. Channels without a link get
// no button since Telegram rejects empty URLs.
func joinKeyboard(channels store.Channels) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range channels {
		if c.Link == "" {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(name, c.Link)))
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func (a *App) onSetAmazonTag(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return
	}
	if err := a.store.SetAmazonTag(args[0]); err != nil {
		a.reply(msg.Chat.ID, render.Failure("save failed", err))
		return
	}
	a.reply(msg.Chat.ID, render.AmazonTagSaved(args[0]))
}

func (a *App) onSetCue(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return
	}
	if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
		a.reply(msg.Chat.ID, render.CueUsage)
		return
	}
	if err := a.store.SetCuePublisherID(args[0]); err != nil {
		a.reply(msg.Chat.ID, render.Failure("save failed", err))
		return
	}
	a.reply(msg.Chat.ID, render.CueSaved(args[0]))
}

// onForward registers the forwarded-from chat for kind. The session returns
// to idle whether or not the save succeeds.
func (a *App) onForward(kind session.Kind, msg *tgbotapi.Message) {
	adminID := msg.From.ID
	chat := msg.ForwardFromChat
	a.sess.Reset(adminID)

	var err error
	if tier, ok := kind.Tier(); ok {
		err = a.store.AddChannel(tier, store.Channel{
			ID:   strconv.FormatInt(chat.ID, 10),
			Name: chat.Title,
			Link: a.channelLink(chat),
		})
	} else {
		err = a.store.SetPostChannel(chat.ID)
	}
	if err != nil {
		a.log.Error("register channel", zap.Stringer("kind", kind), zap.Int64("chat", chat.ID), zap.Error(err))
		a.reply(msg.Chat.ID, render.Failure("could not save "+chat.Title, err))
		return
	}

	a.log.Info("channel registered", zap.Stringer("kind", kind), zap.Int64("chat", chat.ID), zap.String("title", chat.Title))
	a.reply(msg.Chat.ID, render.Saved(chat.Title))
}

// channelLink prefers the chat's invite link, then its public username, then
// a freshly exported invite link. Empty when none is available.
func (a *App) channelLink(chat *tgbotapi.Chat) string {
	if chat.InviteLink != "" {
		return chat.InviteLink
	}
	if chat.UserName != "" {
		return "https://t.me/" + chat.UserName
	}
	link, err := a.exportInviteLink(chat.ID)
	if err != nil {
		a.log.Warn("export invite link", zap.Int64("chat", chat.ID), zap.Error(err))
		return ""
	}
	return link
}

func (a *App) exportInviteLink(chatID int64) (string, error) {
	resp, err := a.api.Request(tgbotapi.ChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return "", err
	}
	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", errors.Wrap(err, "decode invite link")
	}
	return link, nil
}

// onBroadcastPayload copies msg to every registered user.
func (a *App) onBroadcastPayload(ctx context.Context, msg *tgbotapi.Message) {
	adminID := msg.From.ID
	a.sess.Reset(adminID)

	users := a.store.Users()
	started := time.Now()
	res := a.fanout.Run(ctx, users, func(_ context.Context, userID int64) error {
		_, err := a.api.Request(tgbotapi.NewCopyMessage(userID, msg.Chat.ID, msg.MessageID))
		return err
	})
	a.log.Info("broadcast finished",
		zap.Int("recipients", len(users)),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(started)),
	)

	if a.journal != nil {
		_, err := a.journal.RecordBroadcast(ctx, db.Broadcast{
			AdminID:    adminID,
			Recipients: len(users),
			Delivered:  res.Delivered,
			Failed:     res.Failed,
			StartedAt:  started,
			FinishedAt: time.Now(),
		})
		if err != nil {
			a.log.Warn("journal broadcast", zap.Error(err))
		}
	}

	a.reply(msg.Chat.ID, render.BroadcastDone(res.Delivered, res.Failed))
}
