// Package greeting turns one (person, event) pair into a finished greeting
// text: prompt assembly, content-service calls with retry and backoff, the
// sincerity quality gate, signature normalization and the final conversion to
// the delivery markup dialect.
package greeting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/atlasbank/greeting-engine/internal/domain"
	"github.com/atlasbank/greeting-engine/internal/gigachat"
)

// Signature is the canonical closing appended to every greeting.
const Signature = "С уважением,\nкоманда Атлас Банка"

// Both markers must be present for a model-written closing to count as the
// canonical signature.
var signatureMarkers = [...]string{"С уважением", "Атлас"}

// altSignatureRe matches the disallowed alternate closing the model tends to
// produce, through end of text.
var altSignatureRe = regexp.MustCompile(`(?s)С наилучшими пожеланиями.*$`)

const (
	defaultMinScore    = 0.6
	defaultMaxAttempts = 2

	// rateRetryCeiling bounds throttling retries across one Generate call.
	rateRetryCeiling = 5

	backoffBase = 5 * time.Second
	backoffMax  = 120 * time.Second

	// transientRetryDelay is the pause before the single retry a quality
	// attempt gets for non-throttling transient faults.
	transientRetryDelay = time.Second
)

// ContentClient is the slice of the gigachat client the pipeline needs.
type ContentClient interface {
	Chat(ctx context.Context, req gigachat.ChatRequest) (*gigachat.ChatResponse, error)
}

// Options tune one Generate call.
type Options struct {
	// Evaluate turns on the sincerity quality gate.
	Evaluate bool
	// MinScore is the composite acceptance threshold; zero selects 0.6.
	MinScore float64
	// MaxAttempts is the number of quality retries after the initial
	// attempt; zero selects 2, so up to 3 generations total.
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.MinScore <= 0 {
		o.MinScore = defaultMinScore
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	return o
}

// Pipeline generates greeting texts through a content client.
type Pipeline struct {
	client    ContentClient
	evaluator *Evaluator

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewPipeline creates a Pipeline; the evaluator shares the same client.
func NewPipeline(client ContentClient) *Pipeline {
	return &Pipeline{
		client:    client,
		evaluator: NewEvaluator(client),
		sleep:     time.Sleep,
	}
}

// Generate produces one greeting text for the request.
//
// Without evaluation the first successful generation is post-processed and
// returned. With evaluation each attempt is scored on markup-stripped text;
// the best-scoring attempt seen is returned as soon as it passes MinScore or
// once the attempt budget is spent, even when still below threshold. The
// returned score is nil when evaluation was off.
func (p *Pipeline) Generate(ctx context.Context, req domain.GenerationRequest, opts Options) (string, *domain.QualityScore, error) {
	opts = opts.withDefaults()

	attempts := 1
	if opts.Evaluate {
		attempts = opts.MaxAttempts + 1
	}

	var (
		bestText  string
		bestScore domain.QualityScore
		haveBest  bool
		rateTries int
	)

	for attempt := 0; attempt < attempts; attempt++ {
		text, err := p.requestText(ctx, buildPrompt(req, attempt > 0), &rateTries)
		if err != nil {
			if isFatal(err) || attempt == attempts-1 && !haveBest {
				return "", nil, err
			}
			log.Printf("[Pipeline] attempt %d failed: %v", attempt+1, err)
			continue
		}

		text = normalizeSignature(text)

		if !opts.Evaluate {
			return ToMarkdownV2(text), nil, nil
		}

		score := p.evaluator.Score(ctx, StripMarkup(text), EvalContext{
			EventType: req.EventType,
			Segment:   req.Segment,
			Tone:      req.Tone,
		})
		if !haveBest || score.Composite() > bestScore.Composite() {
			bestText, bestScore, haveBest = text, score, true
		}
		if score.Passes(opts.MinScore) {
			break
		}
		log.Printf("[Pipeline] attempt %d scored %.2f, below %.2f",
			attempt+1, score.Composite(), opts.MinScore)
	}

	if !haveBest {
		return "", nil, fmt.Errorf("greeting: all %d attempts failed", attempts)
	}
	s := bestScore
	return ToMarkdownV2(bestText), &s, nil
}

// requestText performs one generation call, absorbing throttling into the
// shared backoff budget. Throttling retries never consume a quality attempt;
// any other transient fault gets exactly one quick retry.
func (p *Pipeline) requestText(ctx context.Context, prompt string, rateTries *int) (string, error) {
	retriedTransient := false
	for {
		resp, err := p.client.Chat(ctx, gigachat.ChatRequest{
			Messages: []gigachat.Message{{Role: gigachat.RoleUser, Content: prompt}},
		})
		switch {
		case err == nil:
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				err = errors.New("greeting: empty response")
				break
			}
			return text, nil
		case errors.Is(err, gigachat.ErrRateLimited):
			if *rateTries >= rateRetryCeiling {
				return "", fmt.Errorf("greeting: rate limit retries exhausted: %w", err)
			}
			delay := rateBackoff(*rateTries)
			log.Printf("[Pipeline] rate limited, retry %d in %s", *rateTries+1, delay)
			p.sleep(delay)
			*rateTries++
			continue
		case isFatal(err):
			return "", err
		}

		if retriedTransient {
			return "", err
		}
		retriedTransient = true
		p.sleep(transientRetryDelay)
	}
}

// rateBackoff is min(5s * 2^k, 120s).
func rateBackoff(k int) time.Duration {
	d := backoffBase << uint(k)
	if d > backoffMax || d <= 0 {
		return backoffMax
	}
	return d
}

// isFatal reports errors that no amount of retrying will fix.
func isFatal(err error) bool {
	return errors.Is(err, gigachat.ErrUnauthorized) ||
		errors.Is(err, gigachat.ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// normalizeSignature strips the disallowed alternate closing and appends the
// canonical one unless both signature markers are already present.
func normalizeSignature(text string) string {
	text = strings.TrimSpace(altSignatureRe.ReplaceAllString(text, ""))

	for _, marker := range signatureMarkers {
		if !strings.Contains(text, marker) {
			return text + "\n\n" + Signature
		}
	}
	return text
}
