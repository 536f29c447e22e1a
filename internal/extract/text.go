package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// textSources collects input[].source strings.
func textSources(doc gjson.Result) []string {
	var out []string
	for _, item := range items(doc, "input") {
		if src := item.Get("source"); src.Type == gjson.String {
			out = append(out, src.Str)
		}
	}
	return out
}

// promptTexts collects the text an LLM request carries: chat message
// contents, a bare prompt, or input[].source.
func promptTexts(doc gjson.Result) []string {
	var out []string
	doc.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		if content := msg.Get("content"); content.Type == gjson.String {
			out = append(out, content.Str)
		}
		return true
	})
	if prompt := doc.Get("prompt"); prompt.Type == gjson.String {
		out = append(out, prompt.Str)
	}
	return append(out, textSources(doc)...)
}

// countCharacters counts code points, not bytes.
func countCharacters(texts []string) int {
	total := 0
	for _, s := range texts {
		total += utf8.RuneCountInString(s)
	}
	return total
}

// countWords counts whitespace-delimited words.
func countWords(texts []string) int {
	total := 0
	for _, s := range texts {
		total += len(strings.Fields(s))
	}
	return total
}
