package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Armin-kho/deal-gate-bot/internal/broadcast"
	"github.com/Armin-kho/deal-gate-bot/internal/config"
	"github.com/Armin-kho/deal-gate-bot/internal/db"
	"github.com/Armin-kho/deal-gate-bot/internal/gate"
	"github.com/Armin-kho/deal-gate-bot/internal/scheduler"
	"github.com/Armin-kho/deal-gate-bot/internal/session"
	"github.com/Armin-kho/deal-gate-bot/internal/sources"
	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

// API is the part of *tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Poster runs one scheduled-post tick on demand.
type Poster interface {
	PostOnce(ctx context.Context) (bool, error)
}

// Journal is the history the admin surface writes to and reports from.
type Journal interface {
	RecordBroadcast(ctx context.Context, b db.Broadcast) (db.Broadcast, error)
	Summary(ctx context.Context) (db.Summary, error)
}

type App struct {
	adminID int64
	api     API
	store   *store.Store
	gate    *gate.Gate
	sess    *session.Sessions
	fanout  *broadcast.Fanout
	poster  Poster
	journal Journal
	log     *zap.Logger

	// Set only by New.
	bot   *tgbotapi.BotAPI
	sched *scheduler.Scheduler
	hist  *db.DB
}

type deps struct {
	adminID        int64
	api            API
	store          *store.Store
	poster         Poster
	journal        Journal
	broadcastDelay time.Duration
	logger         *zap.Logger
}

func newApp(d deps) *App {
	logger := d.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		adminID: d.adminID,
		api:     d.api,
		store:   d.store,
		gate:    gate.New(gate.TelegramLookup{API: d.api}, logger.With(zap.String("feature", "gate"))),
		sess:    session.New(),
		fanout:  broadcast.New(d.broadcastDelay, logger.With(zap.String("feature", "broadcast"))),
		poster:  d.poster,
		journal: d.journal,
		log:     logger,
	}
}

// New wires the bot from configuration: config store, history journal,
// Telegram client and deal poster.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	st, err := store.Open(cfg.StatePath(), logger.With(zap.String("feature", "store")))
	if err != nil {
		return nil, err
	}

	hist, err := db.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}

	if err := tgbotapi.SetLogger(zap.NewStdLog(logger.With(zap.String("feature", "tgbotapi")))); err != nil {
		logger.Warn("unable to redirect telegram client logs", zap.Error(err))
	}
	b, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		_ = hist.Close()
		return nil, errors.Wrap(err, "unable to initialise telegram client")
	}
	b.Debug = cfg.Debug

	src := sources.NewManager(cfg.DealsURL, cfg.FetchTimeout.Duration)
	sched := scheduler.New(st, src, b, hist,
		cfg.FirstDelay.Duration, cfg.PostInterval.Duration,
		logger.With(zap.String("feature", "scheduler")),
	)

	app := newApp(deps{
		adminID:        cfg.AdminID,
		api:            b,
		store:          st,
		poster:         sched,
		journal:        hist,
		broadcastDelay: cfg.BroadcastDelay.Duration,
		logger:         logger,
	})
	app.bot = b
	app.sched = sched
	app.hist = hist
	return app, nil
}

func (a *App) Close() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			a.log.Warn("close history db", zap.Error(err))
		}
	}
}

// Run starts the poster and handles updates one at a time until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.bot == nil {
		return errors.New("bot not initialised")
	}
	a.log.Info("bot authorized", zap.String("username", a.bot.Self.UserName))

	a.sched.Start()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			a.handleUpdate(ctx, upd)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("handler panic",
				zap.Int("update", upd.UpdateID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if upd.Message != nil {
		a.handleMessage(ctx, upd.Message)
		return
	}
	if upd.CallbackQuery != nil {
		a.handleCallback(ctx, upd.CallbackQuery)
		return
	}
}

func (a *App) isAdmin(userID int64) bool {
	return userID == a.adminID
}

func (a *App) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := a.api.Send(msg); err != nil {
		a.log.Warn("send reply", zap.Int64("chat", chatID), zap.Error(err))
	}
}
