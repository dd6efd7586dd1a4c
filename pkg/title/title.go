// Package title generates short chat titles from the first exchange of a
// conversation.
package title

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/llm"
)

const (
	// MaxLength caps generated and fallback titles, in characters.
	MaxLength = 50

	maxTokens   = 20
	temperature = 0.7
)

const systemPrompt = `You are a title generator. Generate a short title (3-6 words) that summarizes ONLY the topic being discussed.

Rules:
- Output ONLY the title, nothing else
- No quotes, no prefixes like "Title:", no explanations
- Do not include words like "User", "Assistant", "Question", "Chat"
- Focus on the actual subject matter`

// Completer runs a non-streaming chat completion. *client.Client satisfies
// it.
type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []llm.Message, opts *client.ChatOptions) (*llm.ChatResponse, error)
}

// Generator produces chat titles with a dedicated model.
type Generator struct {
	completer Completer
	model     string
	logger    *zap.Logger
}

// NewGenerator creates a Generator that asks model for titles.
func NewGenerator(completer Completer, model string, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, model: model, logger: logger}
}

// Generate returns a title for the exchange. It never fails: when the model
// errors or produces nothing usable, the title is the user message cut to
// MaxLength characters.
func (g *Generator) Generate(ctx context.Context, userMessage, assistantMessage string) string {
	conversation := "User: " + userMessage
	if assistantMessage != "" {
		conversation += "\nAssistant: " + assistantMessage
	}

	messages := []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, systemPrompt),
		llm.NewTextMessage(llm.RoleUser, "Generate a title for this conversation:\n\n"+conversation),
	}

	temp, tokens := temperature, maxTokens
	resp, err := g.completer.ChatCompletion(ctx, g.model, messages, &client.ChatOptions{
		Temperature: &temp,
		MaxTokens:   &tokens,
	})
	if err != nil {
		g.logger.Debug("title generation failed, using fallback", zap.Error(err))
		return Fallback(userMessage)
	}

	if t := Clean(resp.Message.Content); t != "" {
		return t
	}
	return Fallback(userMessage)
}

var (
	surroundingQuotes = regexp.MustCompile(`^["']|["']$`)
	labelPrefix       = regexp.MustCompile(`(?i)^(Title:|Topic:|Subject:)\s*`)
	rolePrefix        = regexp.MustCompile(`(?i)^(User|Assistant|Question|Chat)[\s:]+`)
	trailingPunct     = regexp.MustCompile(`[.!?]$`)
)

// Clean normalizes raw model output into a title: surrounding quotes,
// label and role prefixes and one trailing punctuation mark are removed,
// and the result is cut to MaxLength characters.
func Clean(raw string) string {
	t := strings.TrimSpace(raw)
	t = surroundingQuotes.ReplaceAllString(t, "")
	t = labelPrefix.ReplaceAllString(t, "")
	t = rolePrefix.ReplaceAllString(t, "")
	t = trailingPunct.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	return truncateRunes(t, MaxLength)
}

// Fallback derives a title from the user message.
func Fallback(userMessage string) string {
	if len([]rune(userMessage)) > MaxLength {
		return truncateRunes(userMessage, MaxLength) + "..."
	}
	return userMessage
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
