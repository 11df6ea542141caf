package ai

import (
	"context"
	"fmt"
	"strings"
)

const clinicalSystemPrompt = `You are a professional medical summarizer.
Summarize the report you are given in clear, structured bullet points under these headings:
- **Findings**
- **Impression**
- **Key Values / Observations**

Rules:
- Be accurate and faithful to the input.
- Do NOT add or assume any information not present in the text.
- Keep the summary under 200 words.`

const defaultMaxInputChars = 6000

// Summarizer turns clinical text into a structured bullet summary via a
// TextGenerator. Input beyond the character cap is truncated rather than
// rejected, to stay within the model's input limits.
type Summarizer struct {
	generator     TextGenerator
	maxInputChars int
}

// NewSummarizer builds a summarizer over the given generator.
// maxInputChars <= 0 selects the default cap.
func NewSummarizer(generator TextGenerator, maxInputChars int) *Summarizer {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxInputChars
	}
	return &Summarizer{generator: generator, maxInputChars: maxInputChars}
}

// Summarize produces the structured summary for the given clinical text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = truncateRunes(text, s.maxInputChars)
	userPrompt := fmt.Sprintf("Report:\n\"\"\"\n%s\n\"\"\"", text)
	out, err := s.generator.GenerateText(ctx, clinicalSystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty summary from generator")
	}
	return out, nil
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
