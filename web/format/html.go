package format

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	numberedItemRe = regexp.MustCompile(`^\d+\.\s`)
	codeClassRe    = regexp.MustCompile(`^language-[A-Za-z0-9_+#-]+$`)

	htmlPolicy = func() *bluemonday.Policy {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Matching(codeClassRe).OnElements("code")
		return p
	}()
)

// RenderHTML converts an answer's markdown into sanitized HTML for clients that
// cannot render markdown themselves.
func RenderHTML(md string) string {
	md = normalizeMarkdownLists(md)

	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	raw := markdown.ToHTML([]byte(md), p, renderer)

	return htmlPolicy.Sanitize(string(raw))
}

// normalizeMarkdownLists ensures list items have proper spacing for markdown parsing.
// Markdown requires a blank line before lists, but LLMs often forget this.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	inFence := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, Fence) {
			inFence = !inFence
		}

		if !inFence && isListItem(trimmed) && i > 0 {
			prevLine := strings.TrimSpace(lines[i-1])
			if prevLine != "" && !isListItem(prevLine) {
				result = append(result, "")
			}
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

func isListItem(trimmed string) bool {
	return strings.HasPrefix(trimmed, "- ") ||
		strings.HasPrefix(trimmed, "* ") ||
		strings.HasPrefix(trimmed, "+ ") ||
		numberedItemRe.MatchString(trimmed)
}
