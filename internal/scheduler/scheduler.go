package scheduler

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Armin-kho/deal-gate-bot/internal/affiliate"
	"github.com/Armin-kho/deal-gate-bot/internal/db"
	"github.com/Armin-kho/deal-gate-bot/internal/render"
	"github.com/Armin-kho/deal-gate-bot/internal/sources"
)

const (
	DefaultFirstDelay = 10 * time.Second
	DefaultInterval   = 1200 * time.Second

	// tickTimeout bounds one whole tick: fetch, send and journal write.
	tickTimeout = 55 * time.Second
)

type DealSource interface {
	FirstDeal(ctx context.Context) (sources.Deal, bool, error)
}

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Settings is the slice of the config store the poster reads.
type Settings interface {
	PostChannel() (int64, bool)
	Tags() affiliate.Tags
}

type Journal interface {
	RecordPost(ctx context.Context, p db.Post) (db.Post, error)
}

type Scheduler struct {
	settings Settings
	src      DealSource
	bot      Sender
	journal  Journal
	log      *zap.Logger

	firstDelay time.Duration
	interval   time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a poster. journal may be nil.
func New(settings Settings, src DealSource, bot Sender, journal Journal, firstDelay, interval time.Duration, logger *zap.Logger) *Scheduler {
	if firstDelay < 0 {
		firstDelay = DefaultFirstDelay
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		settings:   settings,
		src:        src,
		bot:        bot,
		journal:    journal,
		log:        logger,
		firstDelay: firstDelay,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	select {
	case <-time.After(s.firstDelay):
	case <-s.stopCh:
		return
	}
	s.runTick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runTick()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	if _, err := s.PostOnce(ctx); err != nil {
		s.log.Error("scheduled post failed", zap.Error(err))
	}
}

// PostOnce fetches the first deal and posts it to the post channel. It
// reports whether a message was sent; no post channel or no deal is not an error.
func (s *Scheduler) PostOnce(ctx context.Context) (bool, error) {
	chatID, ok := s.settings.PostChannel()
	if !ok {
		s.log.Debug("no post channel, skipping tick")
		return false, nil
	}

	deal, found, err := s.src.FirstDeal(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		s.log.Info("no deal on page")
		return false, nil
	}

	finalURL := affiliate.Rewrite(deal.URL, s.settings.Tags())
	out := render.DealPost(deal, finalURL)

	msg := tgbotapi.NewMessage(chatID, out.Text)
	msg.ParseMode = out.ParseMode
	sent, err := s.bot.Send(msg)
	if err != nil {
		return false, err
	}
	s.log.Info("deal posted",
		zap.Int64("chat", chatID),
		zap.Int("message", sent.MessageID),
		zap.String("title", deal.Title),
	)

	if s.journal != nil {
		_, err := s.journal.RecordPost(ctx, db.Post{
			ChatID:    chatID,
			MessageID: sent.MessageID,
			Title:     deal.Title,
			RawURL:    deal.URL,
			FinalURL:  finalURL,
			Price:     deal.Price,
		})
		if err != nil {
			s.log.Warn("journal post", zap.Error(err))
		}
	}
	return true, nil
}
