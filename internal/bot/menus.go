package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Armin-kho/deal-gate-bot/internal/db"
	"github.com/Armin-kho/deal-gate-bot/internal/render"
	"github.com/Armin-kho/deal-gate-bot/internal/session"
	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// Always answer callback to remove spinner
	if _, err := a.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		a.log.Debug("answer callback", zap.Error(err))
	}

	if q.From == nil || !a.isAdmin(q.From.ID) {
		return
	}
	userID := q.From.ID
	msgID := 0
	if q.Message != nil {
		msgID = q.Message.MessageID
	}

	parts := strings.Split(q.Data, "|")
	switch parts[0] {
	case "add_join":
		a.sess.Begin(userID, session.AddGating)
		a.editOrSendMenu(userID, msgID, render.ForwardAsk, nil)
	case "add_req":
		a.sess.Begin(userID, session.AddRequired)
		a.editOrSendMenu(userID, msgID, render.ForwardAsk, nil)
	case "add_post":
		a.sess.Begin(userID, session.SetPostChannel)
		a.editOrSendMenu(userID, msgID, render.ForwardAsk, nil)
	case "broadcast_start":
		a.sess.Begin(userID, session.Broadcasting)
		a.editOrSendMenu(userID, msgID, render.BroadcastAsk, nil)
	case "del_menu":
		a.sendDeleteMenu(userID, msgID)
	case "del":
		if len(parts) < 3 {
			return
		}
		a.deleteChannel(userID, msgID, store.Tier(parts[1]), strings.Join(parts[2:], "|"))
	case "stats":
		kb := adminKeyboard()
		a.editOrSendMenu(userID, msgID, render.Stats(a.store.Snapshot(), a.summary(ctx)), &kb)
	case "set_tags":
		kb := backKeyboard()
		a.editOrSendMenu(userID, msgID, render.TagHelp, &kb)
	case "back_admin":
		a.sendAdminPanel(userID, msgID)
	case "post_now":
		a.postNow(ctx, userID, msgID)
	}
}

func (a *App) deleteChannel(userID int64, msgID int, tier store.Tier, id string) {
	if tier != store.TierGating && tier != store.TierRequired {
		return
	}
	kb := adminKeyboard()
	removed, err := a.store.DeleteChannel(tier, id)
	if err != nil {
		a.editOrSendMenu(userID, msgID, render.Failure("delete failed", err), &kb)
		return
	}
	if removed {
		a.log.Info("channel deleted", zap.String("tier", string(tier)), zap.String("chat", id))
	}
	a.editOrSendMenu(userID, msgID, render.Deleted, &kb)
}

func (a *App) postNow(ctx context.Context, userID int64, msgID int) {
	kb := adminKeyboard()
	if a.poster == nil {
		a.editOrSendMenu(userID, msgID, render.NothingToPost, &kb)
		return
	}
	posted, err := a.poster.PostOnce(ctx)
	switch {
	case err != nil:
		a.log.Error("manual post failed", zap.Error(err))
		a.editOrSendMenu(userID, msgID, render.Failure("post failed", err), &kb)
	case posted:
		a.editOrSendMenu(userID, msgID, render.DealPosted, &kb)
	default:
		a.editOrSendMenu(userID, msgID, render.NothingToPost, &kb)
	}
}

// summary returns the journal totals, or nil when there is no journal.
func (a *App) summary(ctx context.Context) *db.Summary {
	if a.journal == nil {
		return nil
	}
	s, err := a.journal.Summary(ctx)
	if err != nil {
		a.log.Warn("journal summary", zap.Error(err))
		return nil
	}
	return &s
}

func adminKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📢 Add Join", "add_join"),
			tgbotapi.NewInlineKeyboardButtonData("🔒 Add Req", "add_req"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Set Post Ch", "add_post"),
			tgbotapi.NewInlineKeyboardButtonData("🗑️ Delete Menu", "del_menu"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Stats", "stats"),
			tgbotapi.NewInlineKeyboardButtonData("📤 Broadcast", "broadcast_start"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🆔 Set Tags", "set_tags"),
			tgbotapi.NewInlineKeyboardButtonData("⚡ Post Now", "post_now"),
		),
	)
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "back_admin"),
		),
	)
}

func (a *App) sendAdminPanel(userID int64, msgID int) {
	kb := adminKeyboard()
	a.editOrSendMenu(userID, msgID, render.AdminPanel, &kb)
}

func (a *App) sendDeleteMenu(userID int64, msgID int) {
	d := a.store.Snapshot()
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range d.Channels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Join: "+truncate(c.Name, 40), "del|"+string(store.TierGating)+"|"+c.ID),
		))
	}
	for _, c := range d.RequiredChannels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Req: "+truncate(c.Name, 40), "del|"+string(store.TierRequired)+"|"+c.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "back_admin"),
	))
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	a.editOrSendMenu(userID, msgID, render.DeleteAsk, &kb)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// editOrSendMenu edits msgID in place, falling back to a new message when
// there is nothing to edit or the edit fails. kb may be nil.
func (a *App) editOrSendMenu(userID int64, msgID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if msgID != 0 {
		edit := tgbotapi.NewEditMessageText(userID, msgID, text)
		edit.ReplyMarkup = kb
		edit.DisableWebPagePreview = true
		if _, err := a.api.Request(edit); err == nil {
			return
		}
	}
	msg := tgbotapi.NewMessage(userID, text)
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	msg.DisableWebPagePreview = true
	if _, err := a.api.Send(msg); err != nil {
		a.log.Warn("send menu", zap.Int64("chat", userID), zap.Error(err))
	}
}
