package news

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \\t]*\\r?\\n?(.*?)\\r?\\n?```")
	htmlTag     = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][^<>]*>`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// StripCodeFence removes a markdown code fence wrapped around the payload.
// If the text contains prose around a fenced block, the first block wins.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.Contains(text, "```") {
		return text
	}
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Unterminated fence: drop the opening line.
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			return strings.TrimSpace(text[i+1:])
		}
		return ""
	}
	return text
}

// Parse validates raw AI output and returns at most requested items in source
// order. requested <= 0 disables the cap. Errors are always *FetchError of
// kind KindParse (not JSON) or KindFormat (JSON of the wrong shape).
func Parse(raw string, requested int) ([]Item, error) {
	text := StripCodeFence(raw)
	if text == "" {
		return nil, Fail(KindParse, "empty response", nil)
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, Fail(KindParse, "response is not valid JSON", err)
	}

	records, ok := doc.([]any)
	if !ok {
		return nil, Fail(KindFormat, fmt.Sprintf("expected a JSON array, got %s", jsonType(doc)), nil)
	}
	if len(records) == 0 {
		return nil, Fail(KindFormat, "JSON array is empty", nil)
	}

	items := make([]Item, 0, min(len(records), capOrLen(requested, len(records))))
	for i, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			return nil, Fail(KindFormat, fmt.Sprintf("element %d is %s, not an object", i, jsonType(rec)), nil)
		}
		title, err := stringField(obj, "title", i)
		if err != nil {
			return nil, err
		}
		content, err := stringField(obj, "content", i)
		if err != nil {
			return nil, err
		}
		if requested > 0 && len(items) >= requested {
			continue
		}

		item := Item{Title: singleLine(CleanText(title)), Content: CleanText(content)}
		if item.Title == "" {
			item.Title = PlaceholderTitle
		}
		if link, ok := obj["link"].(string); ok {
			item.Link = normalizeLink(link)
		}
		items = append(items, item)
	}
	return items, nil
}

func stringField(obj map[string]any, key string, idx int) (string, error) {
	v, present := obj[key]
	if !present {
		return "", Fail(KindFormat, fmt.Sprintf("element %d has no %q field", idx, key), nil)
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return "", Fail(KindFormat, fmt.Sprintf("element %d field %q is %s, not a string", idx, key, jsonType(v)), nil)
	}
}

// CleanText trims s, normalises line endings and reduces HTML fragments to
// plain text.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if htmlTag.MatchString(s) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style").Remove()
			doc.Find("br").ReplaceWithHtml("\n")
			doc.Find("p, div, li, h1, h2, h3, h4").AppendHtml("\n\n")
			s = doc.Text()
		}
	}
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeLink(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func capOrLen(requested, n int) int {
	if requested > 0 {
		return requested
	}
	return n
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
