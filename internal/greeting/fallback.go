package greeting

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"
)

// fallbackTemplate renders the last-resort greeting when the content service
// is unavailable. Never scored by the quality gate.
const fallbackTemplate = `{{ name }}, поздравляем вас с таким событием, как {{ event }}!

Желаем успехов, процветания и всего самого доброго. Спасибо, что вы с нами.

` + Signature

var liquidEngine = liquid.NewEngine()

// Fallback renders the static personalized greeting for the given recipient
// and event display name.
func Fallback(name, event string) (string, error) {
	if name == "" {
		name = "Уважаемый клиент"
	}
	if event == "" {
		event = "праздник"
	}
	out, err := liquidEngine.ParseAndRenderString(fallbackTemplate, liquid.Bindings{
		"name":  name,
		"event": event,
	})
	if err != nil {
		return "", fmt.Errorf("greeting: render fallback: %w", err)
	}
	return strings.TrimSpace(out), nil
}
