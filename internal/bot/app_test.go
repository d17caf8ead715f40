package bot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/Armin-kho/deal-gate-bot/internal/affiliate"
	"github.com/Armin-kho/deal-gate-bot/internal/db"
	"github.com/Armin-kho/deal-gate-bot/internal/session"
	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

const testAdmin int64 = 7371674958

type fakeAPI struct {
	mu sync.Mutex

	out    []tgbotapi.Chattable
	copies []tgbotapi.CopyMessageConfig

	members    map[int64]string
	memberErr  error
	blocked    map[int64]bool
	inviteLink string
	panicSend  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.panicSend {
		panic("send exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, c)
	return tgbotapi.Message{MessageID: len(f.out)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := c.(type) {
	case tgbotapi.CallbackConfig:
		return &tgbotapi.APIResponse{Ok: true}, nil
	case tgbotapi.CopyMessageConfig:
		f.copies = append(f.copies, v)
		if f.blocked[v.ChatID] {
			return nil, errors.New("Forbidden: bot was blocked by the user")
		}
		return &tgbotapi.APIResponse{Ok: true}, nil
	case tgbotapi.ChatInviteLinkConfig:
		if f.inviteLink == "" {
			return nil, errors.New("Bad Request: not enough rights")
		}
		raw, _ := json.Marshal(f.inviteLink)
		return &tgbotapi.APIResponse{Ok: true, Result: raw}, nil
	}
	f.out = append(f.out, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	if f.memberErr != nil {
		return tgbotapi.ChatMember{}, f.memberErr
	}
	status, ok := f.members[cfg.ChatID]
	if !ok {
		status = "member"
	}
	return tgbotapi.ChatMember{Status: status}, nil
}

// texts returns the text of every message sent or edited, in order.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.out {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, v.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, v.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	texts := f.texts()
	if len(texts) == 0 {
		t.Fatal("nothing sent")
	}
	return texts[len(texts)-1]
}

type fakePoster struct {
	posted bool
	err    error
	calls  int
}

func (p *fakePoster) PostOnce(context.Context) (bool, error) {
	p.calls++
	return p.posted, p.err
}

type fakeJournal struct {
	broadcasts []db.Broadcast
}

func (j *fakeJournal) RecordBroadcast(_ context.Context, b db.Broadcast) (db.Broadcast, error) {
	j.broadcasts = append(j.broadcasts, b)
	return b, nil
}

func (j *fakeJournal) Summary(context.Context) (db.Summary, error) {
	return db.Summary{Broadcasts: len(j.broadcasts)}, nil
}

type harness struct {
	app     *App
	api     *fakeAPI
	store   *store.Store
	path    string
	poster  *fakePoster
	journal *fakeJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pro_db.json")
	st, err := store.Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		api:     &fakeAPI{members: map[int64]string{}, blocked: map[int64]bool{}},
		store:   st,
		path:    path,
		poster:  &fakePoster{},
		journal: &fakeJournal{},
	}
	h.app = newApp(deps{
		adminID: testAdmin,
		api:     h.api,
		store:   st,
		poster:  h.poster,
		journal: h.journal,
	})
	return h
}

func privateMessage(from int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		n := strings.IndexByte(text, ' ')
		if n < 0 {
			n = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return msg
}

func (h *harness) message(from int64, text string) {
	h.app.handleUpdate(context.Background(), tgbotapi.Update{Message: privateMessage(from, text)})
}

func (h *harness) forward(from int64, chat *tgbotapi.Chat) {
	msg := privateMessage(from, "some channel post")
	msg.ForwardFromChat = chat
	h.app.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (h *harness) callback(from int64, data string) {
	h.app.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 99, Chat: &tgbotapi.Chat{ID: from, Type: "private"}},
		Data:    data,
	}})
}

func TestSetAmazonTagThenRewrite(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.message(testAdmin, "/set_amzn mytag-21")

	if got := h.api.lastText(t); got != "✅ Amazon Tag: mytag-21" {
		t.Errorf("reply = %q", got)
	}
	got := affiliate.Rewrite("https://amazon.in/dp/X?ref=1", h.store.Tags())
	if got != "https://amazon.in/dp/X?ref=1&tag=mytag-21" {
		t.Errorf("rewrite = %q", got)
	}

	saved, err := store.Load(h.path)
	if err != nil {
		t.Fatal(err)
	}
	if saved.AmazonTag != "mytag-21" {
		t.Errorf("persisted tag = %q", saved.AmazonTag)
	}
}

func TestSetCue(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.message(testAdmin, "/set_cue")
	if n := len(h.api.texts()); n != 0 {
		t.Fatalf("missing argument produced %d replies", n)
	}

	h.message(testAdmin, "/set_cue abc")
	if got := h.api.lastText(t); !strings.HasPrefix(got, "Usage:") {
		t.Errorf("reply = %q", got)
	}
	if h.store.Tags().CuePublisherID != "" {
		t.Error("non-numeric id stored")
	}

	h.message(testAdmin, "/set_cue 12345")
	if h.store.Tags().CuePublisherID != "12345" {
		t.Errorf("cue id = %q", h.store.Tags().CuePublisherID)
	}
}

func TestAddJoinForward(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.callback(testAdmin, "add_join")
	if h.app.sess.Current(testAdmin) != session.AddGating {
		t.Fatalf("session = %v", h.app.sess.Current(testAdmin))
	}

	h.forward(testAdmin, &tgbotapi.Chat{ID: -100123, Type: "channel", Title: "Deals", UserName: "dealschan"})

	want := store.Channels{{ID: "-100123", Name: "Deals", Link: "https://t.me/dealschan"}}
	saved, err := store.Load(h.path)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Channels) != 1 || saved.Channels[0] != want[0] {
		t.Errorf("channels = %+v, want %+v", saved.Channels, want)
	}
	if len(saved.RequiredChannels) != 0 {
		t.Errorf("required = %+v", saved.RequiredChannels)
	}
	if h.app.sess.Current(testAdmin) != session.Idle {
		t.Errorf("session not reset: %v", h.app.sess.Current(testAdmin))
	}
	if got := h.api.lastText(t); got != "✅ Saved: Deals" {
		t.Errorf("reply = %q", got)
	}
}

func TestForwardLinkFallbacks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.api.inviteLink = "https://t.me/+exported"

	h.callback(testAdmin, "add_req")
	h.forward(testAdmin, &tgbotapi.Chat{ID: -1001, Type: "channel", Title: "Private", InviteLink: "https://t.me/+own"})
	h.callback(testAdmin, "add_req")
	h.forward(testAdmin, &tgbotapi.Chat{ID: -1002, Type: "channel", Title: "Hidden"})

	req := h.store.Snapshot().RequiredChannels
	if len(req) != 2 {
		t.Fatalf("required = %+v", req)
	}
	if req[0].Link != "https://t.me/+own" || req[1].Link != "https://t.me/+exported" {
		t.Errorf("links = %q, %q", req[0].Link, req[1].Link)
	}

	h.api.inviteLink = ""
	h.callback(testAdmin, "add_join")
	h.forward(testAdmin, &tgbotapi.Chat{ID: -1003, Type: "channel", Title: "NoRights"})
	c, ok := h.store.Snapshot().Channels.Get("-1003")
	if !ok || c.Link != "" {
		t.Errorf("channel = %+v %v", c, ok)
	}
}

func TestSetPostChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.callback(testAdmin, "add_post")
	h.forward(testAdmin, &tgbotapi.Chat{ID: -100777, Type: "channel", Title: "Loot"})

	id, ok := h.store.PostChannel()
	if !ok || id != -100777 {
		t.Errorf("post channel = %d %v", id, ok)
	}
	if len(h.store.Snapshot().Channels) != 0 {
		t.Error("post channel added to gating set")
	}
}

func TestAwaitingForwardIgnoresPlainMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.callback(testAdmin, "add_req")
	before := len(h.api.texts())

	h.message(testAdmin, "hello?")

	if h.app.sess.Current(testAdmin) != session.AddRequired {
		t.Errorf("session = %v, want add_required", h.app.sess.Current(testAdmin))
	}
	if len(h.api.texts()) != before {
		t.Errorf("plain message produced a reply: %v", h.api.texts()[before:])
	}
	if n := len(h.store.Snapshot().RequiredChannels); n != 0 {
		t.Errorf("stored %d channels", n)
	}
}

func TestNewMenuPickReplacesPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.callback(testAdmin, "add_join")
	h.callback(testAdmin, "add_post")
	h.forward(testAdmin, &tgbotapi.Chat{ID: -5, Type: "channel", Title: "P"})

	if _, ok := h.store.PostChannel(); !ok {
		t.Error("post channel not set")
	}
	if len(h.store.Snapshot().Channels) != 0 {
		t.Error("stale add_join pick was used")
	}
}

func TestBroadcast(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for _, u := range []int64{1, 2, 3} {
		if _, err := h.store.RegisterUser(u); err != nil {
			t.Fatal(err)
		}
	}
	h.api.blocked[2] = true

	h.callback(testAdmin, "broadcast_start")
	h.message(testAdmin, "Big sale tonight")

	if len(h.api.copies) != 3 {
		t.Fatalf("copies = %d", len(h.api.copies))
	}
	for i, want := range []int64{1, 2, 3} {
		c := h.api.copies[i]
		if c.ChatID != want || c.FromChatID != testAdmin || c.MessageID != 10 {
			t.Errorf("copy %d = %+v", i, c)
		}
	}
	if got := h.api.lastText(t); got != "✅ Broadcast Done! Delivered: 2, failed: 1" {
		t.Errorf("reply = %q", got)
	}
	if h.app.sess.Current(testAdmin) != session.Idle {
		t.Error("session not reset after broadcast")
	}
	if len(h.journal.broadcasts) != 1 || h.journal.broadcasts[0].Recipients != 3 {
		t.Errorf("journal = %+v", h.journal.broadcasts)
	}
}

func TestStartDeniedKeyboard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	mustAdd(t, h.store, store.TierGating, store.Channel{ID: "-1", Name: "A", Link: "https://t.me/a"})
	mustAdd(t, h.store, store.TierGating, store.Channel{ID: "-2", Name: "B"})
	mustAdd(t, h.store, store.TierRequired, store.Channel{ID: "-3", Name: "C", Link: "https://t.me/c"})
	h.api.members[-2] = "left"

	h.message(42, "/start")

	if users := h.store.Users(); len(users) != 1 || users[0] != 42 {
		t.Errorf("users = %v", users)
	}
	msg, ok := h.api.out[len(h.api.out)-1].(tgbotapi.MessageConfig)
	if !ok || msg.Text != "❌ Access Denied! Join all channels first:" {
		t.Fatalf("reply = %+v", h.api.out[len(h.api.out)-1])
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("markup = %T", msg.ReplyMarkup)
	}
	var got []string
	for _, row := range kb.InlineKeyboard {
		got = append(got, row[0].Text+"="+*row[0].URL)
	}
	want := []string{"A=https://t.me/a", "C=https://t.me/c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("buttons = %v, want %v", got, want)
	}
}

func TestStartFailsOpen(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	mustAdd(t, h.store, store.TierGating, store.Channel{ID: "-1", Name: "A", Link: "https://t.me/a"})
	mustAdd(t, h.store, store.TierRequired, store.Channel{ID: "not-a-number", Name: "Broken"})
	h.api.memberErr = errors.New("Bad Request: chat not found")

	h.message(42, "/start")
	h.message(42, "/start")

	if got := h.api.lastText(t); !strings.HasPrefix(got, "✅ Welcome!") {
		t.Errorf("reply = %q", got)
	}
	if users := h.store.Users(); len(users) != 1 {
		t.Errorf("users = %v", users)
	}
}

func TestNonAdminIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.message(42, "/admin")
	h.message(42, "/set_amzn evil-21")
	h.callback(42, "add_join")
	h.forward(42, &tgbotapi.Chat{ID: -9, Type: "channel", Title: "X", UserName: "x"})
	h.callback(42, "broadcast_start")
	h.message(42, "payload")

	if texts := h.api.texts(); len(texts) != 0 {
		t.Errorf("replies to non-admin: %v", texts)
	}
	d := h.store.Snapshot()
	if d.AmazonTag != "" || len(d.Channels) != 0 || len(h.api.copies) != 0 {
		t.Errorf("state changed: %+v", d)
	}
	if h.app.sess.Current(42) != session.Idle {
		t.Error("non-admin session started")
	}
}

func TestDeleteFromBothTiers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	mustAdd(t, h.store, store.TierGating, store.Channel{ID: "-1", Name: "A"})
	mustAdd(t, h.store, store.TierRequired, store.Channel{ID: "-2", Name: "B"})

	h.callback(testAdmin, "del_menu")
	edit, ok := h.api.out[len(h.api.out)-1].(tgbotapi.EditMessageTextConfig)
	if !ok || edit.ReplyMarkup == nil {
		t.Fatalf("delete menu = %+v", h.api.out[len(h.api.out)-1])
	}
	var data []string
	for _, row := range edit.ReplyMarkup.InlineKeyboard {
		data = append(data, *row[0].CallbackData)
	}
	if strings.Join(data, ",") != "del|join|-1,del|req|-2,back_admin" {
		t.Errorf("buttons = %v", data)
	}

	h.callback(testAdmin, "del|req|-2")
	h.callback(testAdmin, "del|join|-1")
	h.callback(testAdmin, "del|join|-404")
	h.callback(testAdmin, "del|bogus|-1")

	saved, err := store.Load(h.path)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Channels) != 0 || len(saved.RequiredChannels) != 0 {
		t.Errorf("left over: %+v / %+v", saved.Channels, saved.RequiredChannels)
	}
	if got := h.api.lastText(t); got != "✅ Deleted!" {
		t.Errorf("reply = %q", got)
	}
}

func TestStatsAndPostNow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.callback(testAdmin, "stats")
	if got := h.api.lastText(t); !strings.Contains(got, "Users: 0") || !strings.Contains(got, "Broadcasts: 0") {
		t.Errorf("stats = %q", got)
	}

	h.callback(testAdmin, "post_now")
	if got := h.api.lastText(t); !strings.HasPrefix(got, "ℹ️ Nothing posted") {
		t.Errorf("reply = %q", got)
	}
	h.poster.posted = true
	h.callback(testAdmin, "post_now")
	if got := h.api.lastText(t); got != "✅ Deal posted." {
		t.Errorf("reply = %q", got)
	}
	h.poster.err = errors.New("fetch timeout")
	h.callback(testAdmin, "post_now")
	if got := h.api.lastText(t); !strings.Contains(got, "fetch timeout") {
		t.Errorf("reply = %q", got)
	}
	if h.poster.calls != 3 {
		t.Errorf("poster calls = %d", h.poster.calls)
	}
	if h.app.sess.Current(testAdmin) != session.Idle {
		t.Error("stateless action touched the session")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.api.panicSend = true

	h.message(42, "/start")

	if users := h.store.Users(); len(users) != 1 {
		t.Errorf("users = %v", users)
	}
}

func TestGroupMessagesIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.callback(testAdmin, "broadcast_start")
	before := len(h.api.texts())

	msg := privateMessage(testAdmin, "group chatter")
	msg.Chat = &tgbotapi.Chat{ID: -500, Type: "supergroup"}
	h.app.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	if len(h.api.texts()) != before || h.app.sess.Current(testAdmin) != session.Broadcasting {
		t.Error("group message consumed the broadcast session")
	}
}

func mustAdd(t *testing.T, st *store.Store, tier store.Tier, c store.Channel) {
	t.Helper()
	if err := st.AddChannel(tier, c); err != nil {
		t.Fatal(err)
	}
}
