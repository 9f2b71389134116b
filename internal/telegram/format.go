package telegram

import (
	"strings"

	"github.com/deusflow/newsbot/internal/news"
)

const (
	// MaxMessageLength is Telegram's sendMessage text limit in UTF-16 units.
	MaxMessageLength = 4096

	Ellipsis = "…"

	// reservedChars must be escaped with a backslash in MarkdownV2 text.
	reservedChars = "_*[]()~`>#+-=|{}.!\\"

	paragraphGap = "\n\n"
)

// FormattedMessage is ready-to-send MarkdownV2 text.
type FormattedMessage struct {
	Text      string
	Truncated bool
}

// Escape prefixes every MarkdownV2 reserved character with a backslash.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for _, r := range s {
		if strings.ContainsRune(reservedChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLinkURL escapes the characters MarkdownV2 reserves inside (...) of an
// inline link.
func escapeLinkURL(u string) string {
	r := strings.NewReplacer(`\`, `\\`, `)`, `\)`)
	return r.Replace(u)
}

// Format renders an item as a bold title, a blank line and the content. Text
// longer than MaxMessageLength is cut on an escape-pair boundary and ends
// with Ellipsis. The content is cut first; the title only when it cannot fit
// on its own.
func Format(item news.Item) FormattedMessage {
	title := Escape(item.Title)
	content := Escape(item.Content)

	openMark, closeMark := "*", "*"
	if item.Link != "" {
		openMark, closeMark = "*[", "]("+escapeLinkURL(item.Link)+")*"
	}
	head := openMark + title + closeMark

	full := head
	if content != "" {
		full += paragraphGap + content
	}
	if textUnits(full) <= MaxMessageLength {
		return FormattedMessage{Text: full}
	}

	budget := MaxMessageLength - textUnits(head) - textUnits(paragraphGap) - textUnits(Ellipsis)
	if budget >= 0 {
		cut := strings.TrimRight(cutEscaped(content, budget), " \t\n")
		return FormattedMessage{Text: head + paragraphGap + cut + Ellipsis, Truncated: true}
	}

	// The title alone overflows. Drop an oversized link, then cut the title.
	if textUnits(openMark+closeMark)+textUnits(Ellipsis) >= MaxMessageLength/2 {
		openMark, closeMark = "*", "*"
	}
	budget = MaxMessageLength - textUnits(openMark) - textUnits(closeMark) - textUnits(Ellipsis)
	cut := strings.TrimRight(cutEscaped(title, budget), " \t\n")
	return FormattedMessage{Text: openMark + cut + closeMark + Ellipsis, Truncated: true}
}

// cutEscaped returns the longest prefix of s within budget UTF-16 units that
// does not split a backslash from the character it escapes.
func cutEscaped(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	rs := []rune(s)
	used := 0
	end := 0
	for i := 0; i < len(rs); {
		n := 1
		if rs[i] == '\\' && i+1 < len(rs) {
			n = 2
		}
		w := 0
		for _, r := range rs[i : i+n] {
			w += runeUnits(r)
		}
		if used+w > budget {
			break
		}
		used += w
		i += n
		end = i
	}
	return string(rs[:end])
}

// textUnits counts UTF-16 code units, which is how Telegram measures length.
func textUnits(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
