package translate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig contains the Gemini translation collaborator configuration.
type GeminiConfig struct {
	Model  string
	APIKey string
	// Prompt is the translation instruction prepended to every request.
	Prompt string
	// Glossary terms are appended to the prompt as fixed term translations.
	Glossary []GlossaryTerm
}

// GlossaryTerm pins the translation of one domain term.
type GlossaryTerm struct {
	Source string
	Target string
}

// GeminiTranslator implements Translator using the Gemini API.
type GeminiTranslator struct {
	client *genai.Client
	model  string
	prompt string
}

// NewGeminiTranslator creates the Gemini client and pre-renders the
// instruction prompt with the glossary.
func NewGeminiTranslator(ctx context.Context, config GeminiConfig) (*GeminiTranslator, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: config.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiTranslator{
		client: client,
		model:  config.Model,
		prompt: renderPrompt(config.Prompt, config.Glossary),
	}, nil
}

// renderPrompt combines the instruction with the glossary term pairs.
func renderPrompt(prompt string, glossary []GlossaryTerm) string {
	var sb strings.Builder
	sb.WriteString(prompt)

	if len(glossary) > 0 {
		sb.WriteString("\n\n用語集:\n")
		for _, term := range glossary {
			sb.WriteString(term.Source)
			sb.WriteString(": ")
			sb.WriteString(term.Target)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Translate sends one transcript for translation and returns the translated
// text. The response must carry at least one candidate with text parts.
func (g *GeminiTranslator) Translate(ctx context.Context, text string) (string, error) {
	contents := genai.Text(g.prompt + "\n\n" + text)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("translation returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	translated := strings.TrimSpace(sb.String())
	if translated == "" {
		return "", fmt.Errorf("translation returned empty text")
	}

	return translated, nil
}
