package greeting

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/atlasbank/greeting-engine/internal/domain"
	"github.com/atlasbank/greeting-engine/internal/gigachat"
)

// EvalContext is the scoring context handed to the rubric prompt.
type EvalContext struct {
	EventType string
	Segment   domain.Segment
	Tone      domain.Tone
}

// evalMaxRetries bounds the evaluator's own retry loop, independent of the
// pipeline's budget.
const evalMaxRetries = 5

var (
	// scoreObjectRe finds a flat JSON object carrying sincerity_score.
	scoreObjectRe = regexp.MustCompile(`(?s)\{[^{}]*"sincerity_score"[^{}]*\}`)
	// fencedJSONRe finds a fenced code block wrapping the object.
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

// Evaluator scores greeting texts on the four-dimension sincerity rubric.
// Scoring is advisory: every failure path degrades to neutral midpoint
// scores so a broken evaluator can never block delivery.
type Evaluator struct {
	client ContentClient
	sleep  func(time.Duration)
}

// NewEvaluator creates an Evaluator over the given content client.
func NewEvaluator(client ContentClient) *Evaluator {
	return &Evaluator{client: client, sleep: time.Sleep}
}

// Score evaluates the text. Empty text scores zero on every dimension;
// any upstream or parse failure yields domain.NeutralScore.
func (e *Evaluator) Score(ctx context.Context, text string, ec EvalContext) domain.QualityScore {
	if strings.TrimSpace(text) == "" {
		return domain.QualityScore{}
	}

	prompt := buildRubricPrompt(text, ec)

	for attempt := 0; attempt <= evalMaxRetries; attempt++ {
		resp, err := e.client.Chat(ctx, gigachat.ChatRequest{
			Messages: []gigachat.Message{{Role: gigachat.RoleUser, Content: prompt}},
		})
		if err != nil {
			if attempt >= evalMaxRetries || isFatal(err) {
				log.Printf("[Evaluator] giving up after attempt %d: %v", attempt+1, err)
				return domain.NeutralScore()
			}
			if errors.Is(err, gigachat.ErrRateLimited) {
				delay := rateBackoff(attempt)
				log.Printf("[Evaluator] rate limited, retrying in %s", delay)
				e.sleep(delay)
			} else {
				e.sleep(transientRetryDelay)
			}
			continue
		}

		content := strings.TrimSpace(resp.Text())
		if content == "" {
			if attempt >= evalMaxRetries {
				return domain.NeutralScore()
			}
			continue
		}
		return parseScores(content)
	}
	return domain.NeutralScore()
}

func buildRubricPrompt(text string, ec EvalContext) string {
	var ctxInfo strings.Builder
	if ec.EventType != "" {
		ctxInfo.WriteString("Тип события: " + ec.EventType + "\n")
	}
	if ec.Segment != "" {
		ctxInfo.WriteString("Сегмент клиента: " + string(ec.Segment) + "\n")
	}
	if ec.Tone != "" {
		ctxInfo.WriteString("Требуемый тон: " + string(ec.Tone) + "\n")
	}
	if ctxInfo.Len() > 0 {
		ctxInfo.WriteString("\n")
	}

	return "Оцени искренность следующего поздравительного текста для клиента банка.\n\n" +
		ctxInfo.String() +
		"Текст для оценки:\n" + text + "\n\n" +
		"Оцени текст по следующим критериям (от 0.0 до 1.0):\n" +
		"1. Искренность (sincerity_score) - насколько текст звучит искренне, а не шаблонно\n" +
		"2. Теплота (warmth_score) - насколько текст теплый и дружелюбный\n" +
		"3. Персонализация (personalization_score) - насколько текст персонализирован под конкретного клиента\n" +
		"4. Аутентичность (authenticity_score) - насколько текст звучит естественно и аутентично\n\n" +
		"Ответь ТОЛЬКО в формате JSON без дополнительных комментариев:\n" +
		"{\n" +
		"  \"sincerity_score\": <число от 0.0 до 1.0>,\n" +
		"  \"warmth_score\": <число от 0.0 до 1.0>,\n" +
		"  \"personalization_score\": <число от 0.0 до 1.0>,\n" +
		"  \"authenticity_score\": <число от 0.0 до 1.0>\n" +
		"}"
}

// parseScores digs the JSON object out of a possibly chatty response.
// Extraction order: bare object match, fenced code block, whole trimmed
// response. Unparseable content degrades to neutral scores.
func parseScores(content string) domain.QualityScore {
	jsonStr := content
	if m := scoreObjectRe.FindString(content); m != "" {
		jsonStr = m
	} else if m := fencedJSONRe.FindStringSubmatch(content); m != nil {
		jsonStr = m[1]
	}

	var raw struct {
		Sincerity       *float64 `json:"sincerity_score"`
		Warmth          *float64 `json:"warmth_score"`
		Personalization *float64 `json:"personalization_score"`
		Authenticity    *float64 `json:"authenticity_score"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		log.Printf("[Evaluator] unparseable score response: %v", err)
		return domain.NeutralScore()
	}

	return domain.QualityScore{
		Sincerity:       normalizeScore(raw.Sincerity),
		Warmth:          normalizeScore(raw.Warmth),
		Personalization: normalizeScore(raw.Personalization),
		Authenticity:    normalizeScore(raw.Authenticity),
	}
}

// normalizeScore clamps to [0,1]; a missing field defaults to the midpoint.
func normalizeScore(v *float64) float64 {
	if v == nil {
		return 0.5
	}
	switch {
	case *v < 0:
		return 0
	case *v > 1:
		return 1
	default:
		return *v
	}
}
