package middleware

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token cost of a text block.
type TokenCounter interface {
	CountTokens(text string) int
}

// EstimatorCounter is a character-ratio token estimator that
// distinguishes CJK from ASCII, accurate enough for budget clipping
// without an encoder dependency at runtime.
type EstimatorCounter struct{}

func (EstimatorCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	totalChars := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	// CJK ~1.5 chars/token, ASCII ~4 chars/token.
	estimated := int(float64(cjk)/1.5 + float64(totalChars-cjk)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3040 && r <= 0x30FF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}

// TiktokenCounter counts with a tiktoken encoding, initialized lazily
// on first use. Falls back to the estimator if the encoding cannot be
// loaded (the data may need a network fetch).
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	fallback EstimatorCounter
}

// NewTiktokenCounter creates a counter for the given encoding
// (e.g. "cl100k_base").
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	return &TiktokenCounter{encoding: encoding}
}

func (t *TiktokenCounter) CountTokens(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	if t.initErr != nil || t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// clipSections drops whole trailing sections until the joined context
// fits maxTokens. Sections are clipped from the tail so the fixed
// ordering (working, session, long-term, legacy) is preserved and the
// freshest layers survive. A maxTokens of zero disables clipping.
func clipSections(sections []string, maxTokens int, counter TokenCounter) []string {
	if maxTokens <= 0 || len(sections) == 0 {
		return sections
	}
	if counter == nil {
		counter = EstimatorCounter{}
	}
	for len(sections) > 1 {
		joined := strings.Join(sections, "\n\n")
		if counter.CountTokens(joined) <= maxTokens {
			return sections
		}
		sections = sections[:len(sections)-1]
	}
	return sections
}
