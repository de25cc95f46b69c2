// Package dispatch walks the calendar once a day: it expands the current
// date into (person, event) pairs from birthdays and holiday audiences,
// generates content for each pair with bounded concurrency and hands the
// results to delivery. Redis keys make re-runs idempotent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atlasbank/greeting-engine/internal/audience"
	"github.com/atlasbank/greeting-engine/internal/dates"
	"github.com/atlasbank/greeting-engine/internal/delivery"
	"github.com/atlasbank/greeting-engine/internal/domain"
	"github.com/atlasbank/greeting-engine/internal/gigachat"
	"github.com/atlasbank/greeting-engine/internal/greeting"
)

const (
	// DefaultPollInterval is how often the loop checks whether a new
	// calendar day has begun.
	DefaultPollInterval = time.Hour

	// DefaultConcurrency bounds parallel generation calls per run.
	DefaultConcurrency = 4

	// dedupTTL keeps sent-markers long enough to cover any same-day re-run.
	dedupTTL = 48 * time.Hour
)

// RosterStore is the roster slice the dispatcher needs.
type RosterStore interface {
	GetAll(ctx context.Context) ([]domain.Person, error)
	FindByBirthday(ctx context.Context, dm dates.DayMonth) ([]domain.Person, error)
}

// HolidayStore resolves the holidays recurring on a calendar day.
type HolidayStore interface {
	FindByDate(ctx context.Context, dm dates.DayMonth) ([]domain.Holiday, error)
}

// Generator produces greeting text for one request.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest, opts greeting.Options) (string, *domain.QualityScore, error)
}

// ImageGenerator optionally produces a greeting card image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Archiver optionally persists each delivered greeting.
type Archiver interface {
	Archive(ctx context.Context, date, runID string, g domain.Greeting) error
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	RunsCompleted int64 `json:"runs_completed"`
	PairsSeen     int64 `json:"pairs_seen"`
	Delivered     int64 `json:"delivered"`
	Deduplicated  int64 `json:"deduplicated"`
	Failures      int64 `json:"failures"`
}

// Dispatcher is the daily greeting worker.
type Dispatcher struct {
	roster    RosterStore
	holidays  HolidayStore
	generator Generator
	images    ImageGenerator // nil disables cards
	deliverer delivery.Deliverer
	redis     *redis.Client
	archive   Archiver // nil disables archiving

	genOpts      greeting.Options
	concurrency  int
	pollInterval time.Duration
	now          func() time.Time

	runsCompleted int64
	pairsSeen     int64
	delivered     int64
	deduplicated  int64
	failures      int64

	lastDate string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// New creates a Dispatcher with default tuning.
func New(roster RosterStore, holidays HolidayStore, generator Generator,
	deliverer delivery.Deliverer, rdb *redis.Client, genOpts greeting.Options) *Dispatcher {
	return &Dispatcher{
		roster:       roster,
		holidays:     holidays,
		generator:    generator,
		deliverer:    deliverer,
		redis:        rdb,
		genOpts:      genOpts,
		concurrency:  DefaultConcurrency,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
}

// SetImageGenerator enables greeting-card generation.
func (d *Dispatcher) SetImageGenerator(g ImageGenerator) { d.images = g }

// SetArchiver enables per-run greeting archiving.
func (d *Dispatcher) SetArchiver(a Archiver) { d.archive = a }

// SetConcurrency overrides the generation parallelism.
func (d *Dispatcher) SetConcurrency(n int) {
	if n > 0 {
		d.concurrency = n
	}
}

// SetPollInterval overrides how often the loop checks for a new day.
func (d *Dispatcher) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		d.pollInterval = interval
	}
}

// Start begins the daily polling loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	log.Printf("[Dispatcher] Starting with poll interval %v, concurrency %d",
		d.pollInterval, d.concurrency)

	d.wg.Add(1)
	go d.loop()
	return nil
}

// Stop halts the loop and waits for in-flight work.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	log.Printf("[Dispatcher] Stopped")
}

// Stats returns a counters snapshot.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		RunsCompleted: atomic.LoadInt64(&d.runsCompleted),
		PairsSeen:     atomic.LoadInt64(&d.pairsSeen),
		Delivered:     atomic.LoadInt64(&d.delivered),
		Deduplicated:  atomic.LoadInt64(&d.deduplicated),
		Failures:      atomic.LoadInt64(&d.failures),
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.tickOnce()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.tickOnce()
		}
	}
}

// tickOnce dispatches at most once per calendar day.
func (d *Dispatcher) tickOnce() {
	today := d.now().Format("02.01.2006")
	d.mu.Lock()
	if d.lastDate == today {
		d.mu.Unlock()
		return
	}
	d.lastDate = today
	d.mu.Unlock()

	if _, err := d.DispatchDate(d.ctx, today); err != nil {
		log.Printf("[Dispatcher] daily run for %s failed: %v", today, err)
	}
}

// pair is one unit of dispatch work.
type pair struct {
	person domain.Person
	event  domain.Event
}

// DispatchDate runs one full dispatch for the given date ("DD.MM[.YYYY]" or
// "YYYY-MM-DD"). A manual override arrives here as an explicit argument. One
// pair's failure never aborts the others. Returns the run id.
func (d *Dispatcher) DispatchDate(ctx context.Context, date string) (string, error) {
	dm, ok := dates.Parse(date)
	if !ok {
		return "", fmt.Errorf("dispatch: unparseable date %q", date)
	}
	runID := uuid.New().String()
	displayDate := dm.DottedUpon(yearOf(date, d.now()))

	pairs, err := d.collectPairs(ctx, dm, displayDate)
	if err != nil {
		return "", err
	}
	log.Printf("[Dispatcher] run %s date %s: %d pairs", runID, displayDate, len(pairs))

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	for _, pr := range pairs {
		atomic.AddInt64(&d.pairsSeen, 1)

		claimed, err := d.claim(ctx, dm, pr)
		if err != nil {
			log.Printf("[Dispatcher] dedup check failed for person %d: %v", pr.person.ID, err)
			atomic.AddInt64(&d.failures, 1)
			continue
		}
		if !claimed {
			atomic.AddInt64(&d.deduplicated, 1)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pr pair) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := d.processPair(ctx, runID, displayDate, dm, pr); err != nil {
				log.Printf("[Dispatcher] person %d event %q: %v", pr.person.ID, pr.event.Label, err)
				atomic.AddInt64(&d.failures, 1)
				// Release the claim so a re-run can retry this pair.
				d.release(ctx, dm, pr)
			} else {
				atomic.AddInt64(&d.delivered, 1)
			}
		}(pr)
	}
	wg.Wait()
	atomic.AddInt64(&d.runsCompleted, 1)
	return runID, nil
}

// collectPairs expands the date into birthday pairs and holiday-audience
// pairs. Each holiday is resolved independently, so one person can receive
// several greetings on the same day.
func (d *Dispatcher) collectPairs(ctx context.Context, dm dates.DayMonth, displayDate string) ([]pair, error) {
	var pairs []pair

	birthdayPeople, err := d.roster.FindByBirthday(ctx, dm)
	if err != nil {
		return nil, fmt.Errorf("dispatch: birthdays: %w", err)
	}
	for _, p := range birthdayPeople {
		if !p.Activated() {
			continue
		}
		pairs = append(pairs, pair{person: p, event: domain.Event{
			Kind:  domain.EventBirthday,
			Label: "день рождения",
			Date:  displayDate,
		}})
	}

	holidays, err := d.holidays.FindByDate(ctx, dm)
	if err != nil {
		return nil, fmt.Errorf("dispatch: holidays: %w", err)
	}
	if len(holidays) == 0 {
		return pairs, nil
	}

	roster, err := d.roster.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch: roster: %w", err)
	}
	for _, h := range holidays {
		for _, p := range audience.Resolve(h, roster) {
			pairs = append(pairs, pair{person: p, event: domain.Event{
				Kind:      domain.EventHoliday,
				Label:     h.Name,
				Date:      displayDate,
				HolidayID: h.ID,
			}})
		}
	}
	return pairs, nil
}

// processPair generates and delivers one greeting.
func (d *Dispatcher) processPair(ctx context.Context, runID, displayDate string, dm dates.DayMonth, pr pair) error {
	req := requestFor(pr.person, pr.event, displayDate)

	text, score, err := d.generator.Generate(ctx, req, d.genOpts)
	if err != nil {
		// The event still has to be honored; fall back to the static
		// template for anything the pipeline could not recover from.
		log.Printf("[Dispatcher] generation failed for person %d, using fallback: %v", pr.person.ID, err)
		fb, fbErr := greeting.Fallback(pr.person.Name, greeting.EventDisplayName(req.EventType))
		if fbErr != nil {
			return fmt.Errorf("generate: %w", err)
		}
		text, score = greeting.ToMarkdownV2(fb), nil
	}

	var image []byte
	if d.images != nil {
		image, err = d.images.GenerateImage(ctx, imagePrompt(pr.person, pr.event))
		switch {
		case err == nil:
			if scaled, scaleErr := delivery.Downscale(image); scaleErr == nil {
				image = scaled
			}
		case errors.Is(err, gigachat.ErrNoImage):
			image = nil
		default:
			// Text-only delivery beats no delivery.
			log.Printf("[Dispatcher] image generation failed for person %d: %v", pr.person.ID, err)
			image = nil
		}
	}

	if err := d.deliverer.Deliver(ctx, pr.person.ChatID, text, image); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}

	if d.archive != nil {
		g := domain.Greeting{
			PersonID: pr.person.ID,
			ChatID:   pr.person.ChatID,
			Event:    pr.event,
			Text:     text,
			Image:    image,
			Score:    score,
		}
		if err := d.archive.Archive(ctx, dm.Month+"-"+dm.Day, runID, g); err != nil {
			log.Printf("[Dispatcher] archive failed for person %d: %v", pr.person.ID, err)
		}
	}
	return nil
}

// requestFor maps a (person, event) pair onto a generation request.
func requestFor(p domain.Person, ev domain.Event, displayDate string) domain.GenerationRequest {
	var eventType string
	if ev.Kind == domain.EventBirthday {
		eventType = "день_рождения"
	} else if t, ok := greeting.DetectEventType(displayDate); ok {
		eventType = t
	} else {
		eventType = ev.Label
	}

	segment := p.Segment
	if segment == "" {
		segment = domain.SegmentStandard
	}
	tone := domain.ToneFormal
	if segment == domain.SegmentLoyal || p.Role == domain.RoleEmployee {
		tone = domain.ToneFriendly
	}

	return domain.GenerationRequest{
		EventDate:   displayDate,
		EventType:   eventType,
		ClientName:  p.Name,
		CompanyName: p.CompanyName,
		Position:    p.Position,
		Segment:     segment,
		Tone:        tone,
		Preferences: p.Preferences,
		LastTopic:   p.LastTopic,
	}
}

func imagePrompt(p domain.Person, ev domain.Event) string {
	return fmt.Sprintf("Поздравительная открытка на событие «%s» для %s, без текста и надписей",
		ev.Label, p.Name)
}

// claim marks the (date, event, person) triple as sent. Returns false when
// another run already claimed it.
func (d *Dispatcher) claim(ctx context.Context, dm dates.DayMonth, pr pair) (bool, error) {
	if d.redis == nil {
		return true, nil
	}
	return d.redis.SetNX(ctx, dedupKey(dm, pr), "1", dedupTTL).Result()
}

func (d *Dispatcher) release(ctx context.Context, dm dates.DayMonth, pr pair) {
	if d.redis == nil {
		return
	}
	if err := d.redis.Del(ctx, dedupKey(dm, pr)).Err(); err != nil {
		log.Printf("[Dispatcher] release dedup key: %v", err)
	}
}

func dedupKey(dm dates.DayMonth, pr pair) string {
	eventKey := string(pr.event.Kind)
	if pr.event.Kind == domain.EventHoliday {
		eventKey = fmt.Sprintf("holiday:%d", pr.event.HolidayID)
	}
	return fmt.Sprintf("greeting:sent:%s-%s:%s:%d", dm.Month, dm.Day, eventKey, pr.person.ID)
}

// yearOf extracts the year carried by the raw date string, defaulting to the
// current year for year-less forms.
func yearOf(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	if len(raw) == 10 {
		if raw[4] == '-' {
			return raw[:4]
		}
		if raw[2] == '.' {
			return raw[6:]
		}
	}
	return strconv.Itoa(now.Year())
}
