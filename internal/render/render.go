package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Armin-kho/deal-gate-bot/internal/db"
	"github.com/Armin-kho/deal-gate-bot/internal/sources"
	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

// Fixed texts shown to users and the administrator.
const (
	AccessDenied  = "❌ Access Denied! Join all channels first:"
	Welcome       = "✅ Welcome! You are verified. Use /admin if you are the owner."
	AdminPanel    = "💎 PRO ADMIN PANEL"
	ForwardAsk    = "👉 Now forward a message from the channel (the bot must be an admin there)."
	BroadcastAsk  = "👉 Now send the message you want to broadcast."
	DeleteAsk     = "Select channel to delete:"
	TagHelp       = "Commands:\n/set_amzn tag-21\n/set_cue 123456"
	CueUsage      = "Usage: /set_cue <numeric publisher id>"
	Deleted       = "✅ Deleted!"
	DealPosted    = "✅ Deal posted."
	NothingToPost = "ℹ️ Nothing posted: no post channel set or no deal on the page."
)

// Output is a rendered Telegram message.
type Output struct {
	Text      string
	ParseMode string
}

// DealPost renders the scheduled channel post. Text is HTML so titles with
// markdown characters cannot break formatting.
func DealPost(d sources.Deal, finalURL string) Output {
	var b strings.Builder
	b.WriteString("🔥 <b>AUTO LOOT DEAL</b> 🔥\n\n")
	b.WriteString("📦 " + html.EscapeString(d.Title) + "\n")
	b.WriteString("💰 Price: " + html.EscapeString(d.Price) + "\n\n")
	b.WriteString(`🛒 <a href="` + html.EscapeString(finalURL) + `">Buy Now</a>`)
	return Output{Text: b.String(), ParseMode: "HTML"}
}

// Stats renders the admin stats view. sum may be nil when the journal is unavailable.
func Stats(d store.Data, sum *db.Summary) string {
	var b strings.Builder
	b.WriteString("📊 Stats\n\n")
	fmt.Fprintf(&b, "Users: %d\n", len(d.Users))
	fmt.Fprintf(&b, "Channels: %d\n", len(d.Channels)+len(d.RequiredChannels))
	fmt.Fprintf(&b, "Post channel: %s\n", postChannel(d.PostChannel))
	fmt.Fprintf(&b, "Tag: %s\n", blankOrValue(d.AmazonTag))
	fmt.Fprintf(&b, "CueID: %s", blankOrValue(d.CuePublisherID))
	if sum != nil {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "Deals posted: %d (last: %s)\n", sum.Posts, when(sum.LastPost()))
		fmt.Fprintf(&b, "Broadcasts: %d, reached %d (last: %s)", sum.Broadcasts, sum.BroadcastReached, when(sum.LastBroadcast()))
	}
	return b.String()
}

func Saved(title string) string {
	return "✅ Saved: " + title
}

func AmazonTagSaved(tag string) string {
	return "✅ Amazon Tag: " + tag
}

func CueSaved(id string) string {
	return "✅ Cuelinks ID: " + id
}

// Failure is the one-line error reply shown to the administrator.
func Failure(what string, err error) string {
	return fmt.Sprintf("❌ %s: %v", what, err)
}

func BroadcastDone(delivered, failed int) string {
	return fmt.Sprintf("✅ Broadcast Done! Delivered: %d, failed: %d", delivered, failed)
}

func postChannel(id *int64) string {
	if id == nil {
		return "—"
	}
	return fmt.Sprintf("%d", *id)
}

func blankOrValue(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

func when(t time.Time, ok bool) string {
	if !ok {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
