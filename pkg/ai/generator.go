package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// The Gemini client implements this; tests substitute deterministic stubs.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
