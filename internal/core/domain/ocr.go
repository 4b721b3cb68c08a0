package domain

import "strings"

type OCRState string

const (
	OCRRunning   OCRState = "running"
	OCRSucceeded OCRState = "succeeded"
	OCRFailed    OCRState = "failed"
)

type OCRLine struct {
	Content string `json:"content"`
}

type OCRPage struct {
	Lines []OCRLine `json:"lines"`
}

// OCRPollResult is one observation of an asynchronous OCR operation.
type OCRPollResult struct {
	State OCRState
	Pages []OCRPage
	// Error is the provider message for OCRFailed.
	Error string
}

// JoinedText concatenates every line of every page in order, newline separated and trimmed.
func (r OCRPollResult) JoinedText() string {
	var b strings.Builder
	for _, page := range r.Pages {
		for _, line := range page.Lines {
			b.WriteString(line.Content)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

// TruncateRunes cuts text to at most limit characters without splitting a rune.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
