package greeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlasbank/greeting-engine/internal/domain"
	"github.com/atlasbank/greeting-engine/internal/gigachat"
)

// scriptedEvalClient returns canned raw responses for rubric calls.
type scriptedEvalClient struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedEvalClient) Chat(context.Context, gigachat.ChatRequest) (*gigachat.ChatResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return chatResponse(s.responses[i]), nil
	}
	return chatResponse(""), nil
}

func newTestEvaluator(client ContentClient) *Evaluator {
	e := NewEvaluator(client)
	e.sleep = func(time.Duration) {}
	return e
}

func TestScore_ParsesResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.QualityScore
	}{
		{
			name:     "bare json object",
			response: `{"sincerity_score": 0.8, "warmth_score": 0.7, "personalization_score": 0.9, "authenticity_score": 0.6}`,
			want:     domain.QualityScore{Sincerity: 0.8, Warmth: 0.7, Personalization: 0.9, Authenticity: 0.6},
		},
		{
			name: "object buried in chatty prose",
			response: "Вот моя оценка:\n" +
				`{"sincerity_score": 0.8, "warmth_score": 0.7, "personalization_score": 0.9, "authenticity_score": 0.6}` +
				"\nНадеюсь, это поможет!",
			want: domain.QualityScore{Sincerity: 0.8, Warmth: 0.7, Personalization: 0.9, Authenticity: 0.6},
		},
		{
			name:     "fenced code block",
			response: "```json\n{\"sincerity_score\": 0.8, \"warmth_score\": 0.7, \"personalization_score\": 0.9, \"authenticity_score\": 0.6}\n```",
			want:     domain.QualityScore{Sincerity: 0.8, Warmth: 0.7, Personalization: 0.9, Authenticity: 0.6},
		},
		{
			name:     "out of range values clamped",
			response: `{"sincerity_score": 1.7, "warmth_score": -0.2, "personalization_score": 0.9, "authenticity_score": 0.6}`,
			want:     domain.QualityScore{Sincerity: 1.0, Warmth: 0.0, Personalization: 0.9, Authenticity: 0.6},
		},
		{
			name:     "missing fields default to midpoint",
			response: `{"sincerity_score": 0.8}`,
			want:     domain.QualityScore{Sincerity: 0.8, Warmth: 0.5, Personalization: 0.5, Authenticity: 0.5},
		},
		{
			name:     "garbage degrades to neutral",
			response: "не могу оценить этот текст",
			want:     domain.NeutralScore(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEvaluator(&scriptedEvalClient{responses: []string{tt.response}})
			got := e.Score(context.Background(), "Поздравляем вас", EvalContext{})
			if got != tt.want {
				t.Errorf("Score() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScore_EmptyTextScoresZero(t *testing.T) {
	client := &scriptedEvalClient{}
	e := newTestEvaluator(client)
	got := e.Score(context.Background(), "   ", EvalContext{})
	if got != (domain.QualityScore{}) {
		t.Errorf("Score(empty) = %+v, want all zeros", got)
	}
	if client.calls != 0 {
		t.Error("empty text must not reach the content service")
	}
}

func TestScore_RetriesRateLimitThenSucceeds(t *testing.T) {
	client := &scriptedEvalClient{
		errs: []error{gigachat.ErrRateLimited, gigachat.ErrRateLimited, nil},
		responses: []string{"", "",
			`{"sincerity_score": 0.8, "warmth_score": 0.8, "personalization_score": 0.8, "authenticity_score": 0.8}`},
	}
	e := newTestEvaluator(client)
	got := e.Score(context.Background(), "Поздравляем вас", EvalContext{})
	if got.Sincerity != 0.8 {
		t.Errorf("Score() = %+v, want 0.8 after retries", got)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestScore_PersistentFailureIsNeutral(t *testing.T) {
	client := &scriptedEvalClient{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
		errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	e := newTestEvaluator(client)
	got := e.Score(context.Background(), "Поздравляем вас", EvalContext{})
	if got != domain.NeutralScore() {
		t.Errorf("Score() = %+v, want neutral after exhausting retries", got)
	}
	if client.calls != evalMaxRetries+1 {
		t.Errorf("calls = %d, want %d", client.calls, evalMaxRetries+1)
	}
}
