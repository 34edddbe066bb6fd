// Package fanout delivers classified content to every opted-in subscriber.
package fanout

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"vestbot/internal/category"
	"vestbot/internal/news"
	"vestbot/internal/store"
	"vestbot/internal/transport"
	logx "vestbot/pkg/logx"
)

const maxRecordedFailures = 200

type Config struct {
	Workers     int
	RatePerSec  int
	SendTimeout time.Duration
}

// Failure records one recipient that did not get the message this attempt.
type Failure struct {
	Identity string
	Err      string
}

// Report summarizes one Deliver call. Partial failure is not an error;
// callers alert on Failed > 0.
type Report struct {
	ID        string
	Category  string
	Attempted int
	Succeeded int
	Failed    int
	Failures  []Failure
	StartedAt time.Time
	DoneAt    time.Time
}

// Dispatcher resolves recipients through the store and fans content out
// over the delivery channel. Each recipient is attempted independently:
// one blocked or broken recipient never aborts the batch, and a hung send
// is cut off by the per-recipient timeout.
type Dispatcher struct {
	cfg     Config
	store   store.Store
	channel transport.Channel
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, st store.Store, ch transport.Channel, log logx.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   st,
		channel: ch,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Deliver sends content to every subscriber of cat (or of "all").
// An empty cat means the catalog-wide broadcast. Only catastrophic
// failures (the recipient query) surface as an error.
func (d *Dispatcher) Deliver(ctx context.Context, content news.Content, cat string) (Report, error) {
	if cat == "" {
		cat = category.All
	}

	rep := Report{
		ID:        uuid.NewString(),
		Category:  cat,
		StartedAt: time.Now(),
	}

	subs, err := d.store.ListSubscribed(ctx, cat)
	if err != nil {
		return rep, fmt.Errorf("resolve recipients for %q: %w", cat, err)
	}
	rep.Attempted = len(subs)

	d.log.Info("fanout started",
		logx.String("report", rep.ID),
		logx.String("category", cat),
		logx.Int("recipients", len(subs)),
		logx.Int("images", len(content.Images)),
	)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan store.Subscriber)
	)

	workers := d.cfg.Workers
	if workers > len(subs) {
		workers = len(subs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range queue {
				err := d.sendOne(ctx, sub, content)
				mu.Lock()
				if err != nil {
					rep.Failed++
					if len(rep.Failures) < maxRecordedFailures {
						rep.Failures = append(rep.Failures, Failure{Identity: sub.Identity, Err: err.Error()})
					}
				} else {
					rep.Succeeded++
				}
				mu.Unlock()
				if err != nil {
					d.log.Warn("delivery failed",
						logx.String("report", rep.ID),
						logx.String("identity", sub.Identity),
						logx.Err(err),
					)
				}
			}
		}()
	}

	fed := 0
feed:
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			break feed
		case queue <- sub:
			fed++
		}
	}
	close(queue)
	wg.Wait()

	// Recipients never handed to a worker still count against this
	// attempt, so the report always adds up: Attempted = Succeeded + Failed.
	if fed < len(subs) {
		cause := context.Cause(ctx).Error()
		for _, sub := range subs[fed:] {
			rep.Failed++
			if len(rep.Failures) < maxRecordedFailures {
				rep.Failures = append(rep.Failures, Failure{Identity: sub.Identity, Err: cause})
			}
		}
	}

	rep.DoneAt = time.Now()

	fields := []logx.Field{
		logx.String("report", rep.ID),
		logx.String("category", cat),
		logx.Int("attempted", rep.Attempted),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.DoneAt.Sub(rep.StartedAt)),
	}
	if rep.Failed > 0 {
		d.log.Warn("fanout finished with failures", fields...)
	} else {
		d.log.Info("fanout finished", fields...)
	}
	return rep, nil
}

// sendOne delivers to a single recipient, choosing the media shape from
// the image count. No retry here; the failure is recorded for this attempt.
func (d *Dispatcher) sendOne(ctx context.Context, sub store.Subscriber, content news.Content) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	chatID, err := strconv.ParseInt(sub.Identity, 10, 64)
	if err != nil {
		return fmt.Errorf("bad recipient identity %q: %w", sub.Identity, err)
	}
	to := transport.ChatTarget{ChatID: chatID}

	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	switch len(content.Images) {
	case 0:
		_, err = d.channel.SendText(sctx, to, content.Text, nil)
	case 1:
		_, err = d.channel.SendPhoto(sctx, to, content.Images[0], content.Text, nil)
	default:
		items := make([]transport.AlbumItem, 0, len(content.Images))
		for i, u := range content.Images {
			item := transport.AlbumItem{URL: u}
			if i == 0 {
				item.Caption = content.Text
			}
			items = append(items, item)
		}
		err = d.channel.SendAlbum(sctx, to, items, nil)
	}
	return err
}
