package llm

import (
	"context"
	"fmt"

	"github.com/revrost/go-openrouter"
)

const defaultOpenRouterModel = "openai/gpt-3.5-turbo"

// OpenRouter generates through the OpenRouter chat completions API.
type OpenRouter struct {
	client *openrouter.Client
	model  string
}

func NewOpenRouter(apiKey, model string) *OpenRouter {
	if model == "" {
		model = defaultOpenRouterModel
	}
	return &OpenRouter{client: openrouter.NewClient(apiKey), model: model}
}

func (o *OpenRouter) Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (string, error) {
	messages := make([]openrouter.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openrouter.ChatCompletionMessage{
			Role:    openrouter.ChatMessageRoleSystem,
			Content: openrouter.Content{Text: system},
		})
	}
	messages = append(messages, openrouter.ChatCompletionMessage{
		Role:    openrouter.ChatMessageRoleUser,
		Content: openrouter.Content{Text: prompt},
	})

	response, err := o.client.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return response.Choices[0].Message.Content.Text, nil
}

// Available is true once a key is configured; reachability is left to the
// circuit breaker.
func (o *OpenRouter) Available(context.Context) bool { return o.client != nil }
