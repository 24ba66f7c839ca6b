package rag

import (
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"
)

type SentenceSplitter interface {
	Split(text string) []string
}

type RegexSentenceSplitter struct{}

func NewRegexSentenceSplitter() RegexSentenceSplitter {
	return RegexSentenceSplitter{}
}

func (RegexSentenceSplitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	var sentences []string
	var builder strings.Builder

	isBoundary := func(r rune) bool {
		switch r {
		case '.', '!', '?':
			return true
		default:
			return false
		}
	}

	flush := func() {
		if builder.Len() == 0 {
			return
		}
		sentence := strings.TrimSpace(builder.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		builder.Reset()
	}

	for idx, r := range runes {
		builder.WriteRune(r)
		if !isBoundary(r) {
			continue
		}
		// Look ahead to determine if this is end of sentence
		next := idx + 1
		for next < len(runes) && (runes[next] == ' ' || runes[next] == '\n' || runes[next] == '\t') {
			next++
		}
		if next >= len(runes) || isBoundary(runes[next]) {
			continue
		}
		flush()
	}

	flush()

	if len(sentences) == 0 {
		return []string{trimmed}
	}
	return sentences
}

// ProseSentenceSplitter uses prose's sentence segmenter, which handles
// abbreviations and code-like tokens better than the regex splitter.
// It falls back to the regex splitter when prose fails.
type ProseSentenceSplitter struct {
	fallback RegexSentenceSplitter
	logger   *zap.Logger
}

func NewProseSentenceSplitter(logger *zap.Logger) ProseSentenceSplitter {
	return ProseSentenceSplitter{logger: logger}
}

func (p ProseSentenceSplitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	doc, err := prose.NewDocument(trimmed,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("Failed to create prose document for sentence detection, using regex splitter", zap.Error(err))
		}
		return p.fallback.Split(trimmed)
	}
	sentences := make([]string, 0, len(doc.Sentences()))
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			sentences = append(sentences, t)
		}
	}
	if len(sentences) == 0 {
		return []string{trimmed}
	}
	return sentences
}

// Chunker groups sentences into chunks of at most Size characters, carrying
// at least Overlap characters of trailing sentences into the next chunk.
type Chunker struct {
	Size     int
	Overlap  int
	Splitter SentenceSplitter
}

func NewChunker(size, overlap int, splitter SentenceSplitter) *Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	return &Chunker{Size: size, Overlap: overlap, Splitter: splitter}
}

func (c *Chunker) Chunk(text string) []string {
	var pieces []string
	for _, s := range c.Splitter.Split(text) {
		pieces = append(pieces, c.hardSplit(s)...)
	}
	if len(pieces) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	joinedLen := func(parts []string) int {
		n := 0
		for i, p := range parts {
			if i > 0 {
				n++
			}
			n += runeLen(p)
		}
		return n
	}

	for _, piece := range pieces {
		added := runeLen(piece)
		if len(current) > 0 {
			added++
		}
		if currentLen+added > c.Size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			// keep trailing pieces until the overlap is covered, without refilling the chunk
			var carry []string
			for i := len(current) - 1; i >= 0; i-- {
				candidate := append([]string{current[i]}, carry...)
				if joinedLen(candidate)+1+runeLen(piece) > c.Size {
					break
				}
				carry = candidate
				if joinedLen(carry) >= c.Overlap {
					break
				}
			}
			current = carry
			currentLen = joinedLen(current)
			added = runeLen(piece)
			if len(current) > 0 {
				added++
			}
		}
		current = append(current, piece)
		currentLen += added
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// hardSplit cuts a single sentence longer than Size into overlapping windows.
func (c *Chunker) hardSplit(sentence string) []string {
	runes := []rune(sentence)
	if len(runes) <= c.Size {
		return []string{sentence}
	}
	step := c.Size - c.Overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.Size, len(runes))
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
