package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyResponse = errors.New("llm returned empty response")

// Classifier is the single round trip the chatbot makes to the hosted model:
// one prompt in, one short label or answer out. Every caller has a keyword
// fallback, so failures here are never fatal.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// OpenAIClassifier backs Classifier with the OpenAI chat completion API.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIClassifier(apiKey, model string) *OpenAIClassifier {
	return &OpenAIClassifier{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   16,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}
