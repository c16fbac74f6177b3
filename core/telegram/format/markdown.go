package format

import (
	"fmt"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const (
	mdV1Specials = "_*`["
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	var specials string
	switch version {
	case MarkdownV1:
		specials = mdV1Specials
	case MarkdownV2:
		specials = mdV2Specials
	default:
		return "", fmt.Errorf("unsupported markdown version: %d", version)
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// Escape is EscapeMarkdown for the legacy Markdown mode used by SendMD.
func Escape(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV1)
	return out
}

// Code wraps text in an inline code span. Backticks inside are dropped since
// MarkdownV1 has no escape for them within code.
func Code(text string) string {
	return "`" + strings.ReplaceAll(text, "`", "") + "`"
}
