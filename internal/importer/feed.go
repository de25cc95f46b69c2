package importer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/atlasbank/greeting-engine/internal/domain"
)

// dateTagRe matches the MM-DD tag corporate-calendar feeds put in titles,
// e.g. "8 Марта [03-08]".
var dateTagRe = regexp.MustCompile(`\[(\d{2}-\d{2})\]`)

// HolidayFeedPoller keeps the holidays table in sync with an RSS/Atom feed.
// Items without a date tag in the title are ignored.
type HolidayFeedPoller struct {
	parser   *gofeed.Parser
	store    HolidayWriter
	url      string
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewHolidayFeedPoller creates a poller; interval <= 0 selects 6 hours.
func NewHolidayFeedPoller(store HolidayWriter, url string, interval time.Duration) *HolidayFeedPoller {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &HolidayFeedPoller{
		parser:   gofeed.NewParser(),
		store:    store,
		url:      url,
		interval: interval,
	}
}

// Poll fetches the feed once and upserts every tagged item. Returns the
// number of holidays upserted.
func (p *HolidayFeedPoller) Poll(ctx context.Context) (int, error) {
	feed, err := p.parser.ParseURLWithContext(p.url, ctx)
	if err != nil {
		return 0, fmt.Errorf("importer: parse feed: %w", err)
	}

	upserted := 0
	for _, item := range feed.Items {
		m := dateTagRe.FindStringSubmatch(item.Title)
		if m == nil {
			continue
		}
		h := domain.Holiday{
			Name:        strings.TrimSpace(dateTagRe.ReplaceAllString(item.Title, "")),
			DateFixed:   m[1],
			Description: strings.TrimSpace(item.Description),
		}
		if h.Name == "" {
			continue
		}
		if err := p.store.Upsert(ctx, &h); err != nil {
			log.Printf("[FeedPoller] upsert %q: %v", h.Name, err)
			continue
		}
		upserted++
	}
	log.Printf("[FeedPoller] %s: %d items, %d holidays upserted", p.url, len(feed.Items), upserted)
	return upserted, nil
}

// Start begins periodic polling.
func (p *HolidayFeedPoller) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("feed poller already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	log.Printf("[FeedPoller] Starting, url=%s interval=%v", p.url, p.interval)
	p.wg.Add(1)
	go p.loop()
	return nil
}

// Stop halts polling and waits for an in-flight poll.
func (p *HolidayFeedPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *HolidayFeedPoller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := p.Poll(p.ctx); err != nil {
		log.Printf("[FeedPoller] poll failed: %v", err)
	}
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Poll(p.ctx); err != nil {
				log.Printf("[FeedPoller] poll failed: %v", err)
			}
		}
	}
}
