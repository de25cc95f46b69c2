package greeting

import (
	"fmt"
	"strings"

	"github.com/atlasbank/greeting-engine/internal/domain"
)

// eventNames maps normalized event-type keys to display names for Russian
// state and professional holidays. Unknown keys pass through verbatim so
// free-form event types still work.
var eventNames = map[string]string{
	"новый_год":                 "Новый год",
	"рождество":                 "Рождество Христово",
	"день_защитника_отечества":  "День защитника Отечества",
	"8_марта":                   "Международный женский день (8 Марта)",
	"день_весны_и_труда":        "Праздник Весны и Труда",
	"день_победы":               "День Победы",
	"день_россии":               "День России",
	"день_народного_единства":   "День народного единства",
	"день_финансиста":           "День финансиста",
	"день_банковского_работника": "День банковского работника",
	"день_бухгалтера":           "День бухгалтера",
	"день_экономиста":           "День экономиста",
	"день_предпринимателя":      "День предпринимателя",
	"день_рождения":             "день рождения",
	"профессиональный_праздник": "профессиональный праздник",
	"юбилей":                    "юбилей",
	"день_компании":             "день компании",
}

// fixedHolidayTypes keys known state/professional holidays by "DD.MM".
var fixedHolidayTypes = map[string]string{
	"01.01": "новый_год",
	"07.01": "рождество",
	"23.02": "день_защитника_отечества",
	"08.03": "8_марта",
	"01.05": "день_весны_и_труда",
	"09.05": "день_победы",
	"12.06": "день_россии",
	"04.11": "день_народного_единства",
	"08.09": "день_финансиста",
	"02.12": "день_банковского_работника",
	"21.11": "день_бухгалтера",
	"30.06": "день_экономиста",
	"26.05": "день_предпринимателя",
}

// DetectEventType infers the event type from a DD.MM.YYYY date for known
// fixed holidays. For any other date the type must be given explicitly.
func DetectEventType(eventDate string) (string, bool) {
	if len(eventDate) < 5 {
		return "", false
	}
	t, ok := fixedHolidayTypes[eventDate[:5]]
	return t, ok
}

// EventDisplayName resolves an event type to its display name.
func EventDisplayName(eventType string) string {
	key := strings.ToLower(strings.ReplaceAll(eventType, " ", "_"))
	if name, ok := eventNames[key]; ok {
		return name
	}
	if eventType == "" {
		return "праздник"
	}
	return eventType
}

var segmentInfo = map[domain.Segment]string{
	domain.SegmentVIP:      "VIP-клиент, требует премиум подхода",
	domain.SegmentNew:      "новый клиент, важно произвести хорошее впечатление",
	domain.SegmentLoyal:    "лояльный клиент, долгосрочное партнерство",
	domain.SegmentStandard: "стандартный клиент",
}

var toneInfo = map[domain.Tone]string{
	domain.ToneFormal:   "официальный, уважительный тон",
	domain.ToneFriendly: "теплый, дружеский тон",
	domain.ToneCreative: "креативный, оригинальный подход",
}

// buildPrompt assembles the generation instruction for one request. When
// intensified is set (quality retries) the personalization and sincerity
// requirements are stated more forcefully.
func buildPrompt(req domain.GenerationRequest, intensified bool) string {
	eventName := EventDisplayName(req.EventType)

	var ctx []string
	if req.ClientName != "" {
		ctx = append(ctx, "Клиент: "+req.ClientName)
	}
	if req.CompanyName != "" {
		ctx = append(ctx, "Компания: "+req.CompanyName)
	}
	if req.Position != "" {
		ctx = append(ctx, "Должность: "+req.Position)
	}
	if info, ok := segmentInfo[req.Segment]; ok {
		ctx = append(ctx, info)
	}
	if info, ok := toneInfo[req.Tone]; ok {
		ctx = append(ctx, info)
	}
	if req.LastTopic != "" {
		ctx = append(ctx, "Тема последнего взаимодействия: "+req.LastTopic)
	}
	if len(req.Preferences) > 0 {
		ctx = append(ctx, "Предпочтения: "+strings.Join(req.Preferences, ", "))
	}
	context := "стандартный клиент"
	if len(ctx) > 0 {
		context = strings.Join(ctx, "\n")
	}

	reqs := []string{
		"- Тон: " + string(req.Tone),
		"- Обращение должно быть персонализированным",
		"- Упоминание компании клиента, если указано",
		"- Упоминание важности партнерства",
		"- Пожелания успехов и процветания",
		"- Длина: 3-5 предложений",
		"- Заверши текст подписью: «" + Signature + "»",
	}
	if intensified {
		reqs = append(reqs,
			"- Сделай текст максимально искренним и тёплым, избегай шаблонных фраз",
			"- Обязательно используй персональные детали из контекста")
	}

	return fmt.Sprintf(
		"Напиши поздравительное сообщение для клиента банка по случаю %s.\n\n"+
			"Контекст:\n%s\n\n"+
			"Требования:\n%s\n\n"+
			"Напиши только текст поздравления, без дополнительных комментариев.",
		eventName, context, strings.Join(reqs, "\n"))
}
