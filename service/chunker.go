package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tieubaoca/rag-be/types"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ChunkText splits text into overlapping chunks on paragraph boundaries.
//
// Paragraphs are accumulated until adding the next one would push the buffer
// past chunkSize; the buffer is then emitted and the next one is seeded with
// its trailing overlap characters. A paragraph longer than chunkSize is kept
// whole. Text without any paragraph break that is longer than chunkSize is cut
// into fixed windows of chunkSize advancing by chunkSize-overlap instead.
// Empty or whitespace-only text yields no chunks.
func ChunkText(text string, chunkSize, overlap int) []types.TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	paragraphs := make([]string, 0)
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var chunks []types.TextChunk
	if len(paragraphs) > 1 || len(text) <= chunkSize {
		chunks = chunkParagraphs(paragraphs, chunkSize, overlap)
	}
	if len(chunks) == 0 {
		chunks = chunkFixed(text, chunkSize, overlap)
	}
	return chunks
}

func chunkParagraphs(paragraphs []string, chunkSize, overlap int) []types.TextChunk {
	var (
		chunks []types.TextChunk
		buf    string
		offset int
	)
	emit := func() {
		chunks = append(chunks, types.TextChunk{
			Content: strings.TrimSpace(buf),
			Index:   len(chunks),
			Metadata: types.ChunkMetadata{
				CharStart: offset - len(buf),
				CharEnd:   offset,
			},
		})
	}

	for _, para := range paragraphs {
		if len(buf)+len(para) > chunkSize && len(buf) > 0 {
			emit()
			if overlap > 0 && len(buf) > overlap {
				buf = tail(buf, overlap) + "\n\n" + para
			} else {
				buf = para
			}
		} else if buf == "" {
			buf = para
		} else {
			buf = buf + "\n\n" + para
		}
		offset += len(para) + 2
	}

	if strings.TrimSpace(buf) != "" {
		emit()
	}
	return chunks
}

func chunkFixed(text string, chunkSize, overlap int) []types.TextChunk {
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	var chunks []types.TextChunk
	for i := 0; i < len(text); i += step {
		start := runeStart(text, i)
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		end = runeStart(text, end)
		window := strings.TrimSpace(text[start:end])
		if window == "" {
			continue
		}
		chunks = append(chunks, types.TextChunk{
			Content: window,
			Index:   len(chunks),
			Metadata: types.ChunkMetadata{
				CharStart: start,
				CharEnd:   end,
			},
		})
	}
	return chunks
}

// tail returns at most n trailing bytes of s without splitting a rune.
func tail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// runeStart moves i back to the first byte of the rune containing it.
func runeStart(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// EstimateTokenCount approximates tokens as one per four bytes, rounded up.
func EstimateTokenCount(text string) int {
	return (len(text) + 3) / 4
}
