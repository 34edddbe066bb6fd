// Package poller periodically pulls the administration site's feed and
// relays items that were not seen before.
package poller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"vestbot/internal/fanout"
	"vestbot/internal/news"
	"vestbot/internal/store"
	logx "vestbot/pkg/logx"
)

const maxFeedBody = 4 << 20 // 4 MiB

type Config struct {
	FeedURL     string
	Schedule    string
	DedupWindow time.Duration
}

type Deliverer interface {
	Deliver(ctx context.Context, content news.Content, cat string) (fanout.Report, error)
}

// feedItem is one entry of the site's JSON feed.
type feedItem struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

type Poller struct {
	cfg      Config
	dispatch Deliverer
	store    store.Store
	log      logx.Logger

	cron *cron.Cron
	http *http.Client
}

func New(cfg Config, dispatch Deliverer, st store.Store, log logx.Logger) (*Poller, error) {
	if cfg.FeedURL == "" {
		return nil, fmt.Errorf("poller feed url is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10m"
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 7 * 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		cfg:      cfg,
		dispatch: dispatch,
		store:    st,
		log:      log,
		http:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Start schedules the poll job. The cron entry holds ctx so a poll that
// outlives shutdown is cut off with everything else.
func (p *Poller) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(p.cfg.Schedule, func() { p.poll(ctx) }); err != nil {
		return fmt.Errorf("poller schedule %q: %w", p.cfg.Schedule, err)
	}
	p.cron = c
	c.Start()
	p.log.Info("feed poller started", logx.String("url", p.cfg.FeedURL), logx.String("schedule", p.cfg.Schedule))
	return nil
}

// Stop waits for an in-flight poll to finish.
func (p *Poller) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.log.Info("feed poller stopped")
}

func (p *Poller) poll(ctx context.Context) {
	items, err := p.fetch(ctx)
	if err != nil {
		p.log.Warn("feed fetch failed", logx.String("url", p.cfg.FeedURL), logx.Err(err))
		return
	}

	relayed := 0
	for _, it := range items {
		if it.Content == "" {
			continue
		}
		key := itemKey(it)
		if _, seen, err := p.store.GetDedup(ctx, key); err != nil {
			p.log.Warn("dedup lookup failed", logx.Err(err))
			continue
		} else if seen {
			continue
		}

		content := news.Classify(it.Content)
		rep, err := p.dispatch.Deliver(ctx, content, it.Category)
		if err != nil {
			p.log.Error("feed item delivery failed", logx.String("category", it.Category), logx.Err(err))
			continue
		}
		relayed++

		// Remember the item even on partial failure; the feed is not a
		// retry queue and re-sending would duplicate for everyone else.
		if err := p.store.PutDedup(ctx, key, time.Now().Add(p.cfg.DedupWindow)); err != nil {
			p.log.Warn("dedup store failed", logx.Err(err))
		}
		if rep.Failed > 0 {
			p.log.Warn("feed item partially delivered",
				logx.String("report", rep.ID),
				logx.Int("failed", rep.Failed),
				logx.Int("attempted", rep.Attempted),
			)
		}
	}
	if relayed > 0 {
		p.log.Info("feed poll relayed items", logx.Int("count", relayed), logx.Int("total", len(items)))
	}
}

func (p *Poller) fetch(ctx context.Context) ([]feedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.FeedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("feed returned http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, err
	}

	var items []feedItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return items, nil
}

func itemKey(it feedItem) string {
	h := sha256.Sum256([]byte(it.Category + "\x00" + it.Content))
	return "feed:" + hex.EncodeToString(h[:16])
}
