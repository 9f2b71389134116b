package gemini

import (
	"fmt"
	"strings"

	"github.com/deusflow/newsbot/internal/rss"
)

const (
	DefaultTopic    = "Türkiye ve dünya gündemi"
	DefaultLanguage = "Turkish"

	maxPromptHeadlines = 30
)

// BuildPrompt builds the single instruction sent per tick.
func BuildPrompt(topic, language string, count int, headlines []rss.Headline) string {
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a news editor. Write exactly %d current, important and distinct news items about: %s.\n", count, topic)
	fmt.Fprintf(&b, "Write every item in %s.\n\n", language)

	b.WriteString("RESPONSE FORMAT (strict):\n")
	b.WriteString("- Respond with a JSON array only. No prose, no explanation, no markdown.\n")
	fmt.Fprintf(&b, "- The array must contain exactly %d objects.\n", count)
	b.WriteString(`- Every object has the string fields "title" (one short headline) and "content" (the full story, 2-4 paragraphs, plain text).` + "\n")
	b.WriteString(`- Optionally add "link" with the source article URL when the item is based on one of the headlines below.` + "\n")
	b.WriteString(`- Example: [{"title":"...","content":"...","link":"https://..."}]` + "\n")

	if len(headlines) > 0 {
		b.WriteString("\nRECENT HEADLINES (use them as the factual basis, prefer the most important):\n")
		for i, h := range headlines {
			if i >= maxPromptHeadlines {
				break
			}
			fmt.Fprintf(&b, "%d. %s", i+1, oneLine(h.Title))
			if h.Source != "" {
				fmt.Fprintf(&b, " (%s)", oneLine(h.Source))
			}
			if h.Link != "" {
				fmt.Fprintf(&b, " - %s", h.Link)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
