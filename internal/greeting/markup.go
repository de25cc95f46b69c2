package greeting

import (
	"fmt"
	"regexp"
	"strings"
)

// Inline-markup span patterns. Double underscore is neutralized up front so
// the single-delimiter italic rule cannot half-match it.
var (
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe = regexp.MustCompile(`_([^_\n]+)_`)
	codeRe   = regexp.MustCompile("`([^`\n]+)`")
	strikeRe = regexp.MustCompile(`~~(.+?)~~`)
)

// mdv2Specials are the characters MarkdownV2 requires escaped in plain text.
const mdv2Specials = `\_*[]()~` + "`" + `>#+-=|{}.!`

// ToMarkdownV2 converts inline markup (links, bold, italic, code,
// strikethrough) to Telegram MarkdownV2 and escapes everything else.
//
// Span conversion is order sensitive: links first, then bold, italic
// (single-delimiter only), code and strikethrough. Each converted span is
// parked behind a placeholder so later rules never reprocess it; at the end
// all leftover special characters are escaped and the placeholders restored.
func ToMarkdownV2(text string) string {
	var spans []string
	park := func(rendered string) string {
		spans = append(spans, rendered)
		return fmt.Sprintf("\x00%d\x00", len(spans)-1)
	}

	// Double delimiters that must stay literal.
	text = strings.ReplaceAll(text, "__", park(`\_\_`))

	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := linkRe.FindStringSubmatch(m)
		return park("[" + escapeMDV2(parts[1]) + "](" + escapeLinkURL(parts[2]) + ")")
	})
	text = boldRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := boldRe.FindStringSubmatch(m)
		return park("*" + escapeMDV2(parts[1]) + "*")
	})
	text = italicRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := italicRe.FindStringSubmatch(m)
		return park("_" + escapeMDV2(parts[1]) + "_")
	})
	text = codeRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := codeRe.FindStringSubmatch(m)
		return park("`" + escapeCode(parts[1]) + "`")
	})
	text = strikeRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := strikeRe.FindStringSubmatch(m)
		return park("~" + escapeMDV2(parts[1]) + "~")
	})

	text = escapeMDV2(text)

	for i, rendered := range spans {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00%d\x00", i), rendered)
	}
	return text
}

// escapeMDV2 backslash-escapes every MarkdownV2-significant character.
func escapeMDV2(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if r < 128 && strings.ContainsRune(mdv2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLinkURL escapes only what MarkdownV2 requires inside (...).
func escapeLinkURL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `)`, `\)`)
}

// escapeCode escapes only what MarkdownV2 requires inside code spans.
func escapeCode(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "`", "\\`")
}

// StripMarkup removes inline markup so the quality gate scores bare prose.
func StripMarkup(text string) string {
	text = linkRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "__", "")
	text = italicRe.ReplaceAllString(text, "$1")
	text = codeRe.ReplaceAllString(text, "$1")
	text = strikeRe.ReplaceAllString(text, "$1")
	return text
}
