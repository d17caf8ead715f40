package broadcast

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay keeps fan-out under Telegram's per-bot message rate.
const DefaultDelay = 50 * time.Millisecond

// DeliverFunc sends the payload to one user.
type DeliverFunc func(ctx context.Context, userID int64) error

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Result struct {
	Delivered int
	Failed    int
}

// Fanout delivers one payload to many users, one at a time.
type Fanout struct {
	Delay time.Duration
	Sleep SleepFunc
	Log   *zap.Logger
}

func New(delay time.Duration, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{Delay: delay, Sleep: sleepCtx, Log: logger}
}

// Run calls deliver for each user in order with Delay between attempts.
// A failing recipient is counted and skipped. Cancelling ctx stops the loop.
func (f *Fanout) Run(ctx context.Context, users []int64, deliver DeliverFunc) Result {
	var res Result
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}
	for i, uid := range users {
		if i > 0 && f.Delay > 0 {
			if err := sleep(ctx, f.Delay); err != nil {
				log.Warn("broadcast interrupted", zap.Int("remaining", len(users)-i), zap.Error(err))
				return res
			}
		}
		if err := deliver(ctx, uid); err != nil {
			res.Failed++
			log.Debug("broadcast delivery failed", zap.Int64("user", uid), zap.Error(err))
			continue
		}
		res.Delivered++
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
