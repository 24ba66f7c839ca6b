package format

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// Fence is the markdown code fence used by every tool observation.
const Fence = "```"

var languageTagRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+#.-]*$`)

// CodeBlock is a fenced block found in markdown text.
type CodeBlock struct {
	Language string
	Code     string
}

// Markdown renders the block back to fenced markdown.
func (b CodeBlock) Markdown() string {
	code := strings.TrimRight(b.Code, "\n")
	return Fence + b.Language + "\n" + code + "\n" + Fence
}

// FencedBlocks returns the fenced code blocks of text in document order.
func FencedBlocks(text string) []CodeBlock {
	if !strings.Contains(text, Fence) {
		return nil
	}
	// parsers are single use
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := markdown.Parse([]byte(text), p)

	var blocks []CodeBlock
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if cb, ok := node.(*ast.CodeBlock); ok && cb.IsFenced {
			blocks = append(blocks, CodeBlock{
				Language: strings.TrimSpace(string(cb.Info)),
				Code:     string(cb.Literal),
			})
		}
		return ast.GoToNext
	})
	return blocks
}

// HasFencedBlock reports whether text contains at least one complete fenced block.
func HasFencedBlock(text string) bool {
	return len(FencedBlocks(text)) > 0
}

// StartsWithFence reports whether the first non-blank content of text is a fence.
func StartsWithFence(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Fence)
}

// CountFenceLines counts lines that open or close a fence.
func CountFenceLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), Fence) {
			n++
		}
	}
	return n
}

// CloseOpenFence appends a closing fence when text leaves a block open.
func CloseOpenFence(text string) string {
	if CountFenceLines(text)%2 == 0 {
		return text
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + Fence
}

// StripFence removes one leading and one trailing fence together with blank
// lines before the content and whitespace after it. Indentation of the first
// content line is kept. A language tag on the opening fence line is dropped.
func StripFence(text string) string {
	s := dropLeadingBlankLines(text)
	if body, ok := strings.CutPrefix(strings.TrimLeft(s, " \t"), Fence); ok {
		s = body
		firstLine, rest, found := strings.Cut(body, "\n")
		if tag := strings.TrimSpace(firstLine); found && (tag == "" || languageTagRe.MatchString(tag)) {
			s = dropLeadingBlankLines(rest)
		}
	}
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSuffix(s, Fence)
	return strings.TrimRight(s, " \t\r\n")
}

func dropLeadingBlankLines(s string) string {
	for {
		line, rest, found := strings.Cut(s, "\n")
		if strings.TrimSpace(line) != "" {
			return s
		}
		if !found {
			return ""
		}
		s = rest
	}
}

// WrapFence puts text in exactly one fence with no language tag.
func WrapFence(text string) string {
	return Fence + "\n" + text + "\n" + Fence
}
