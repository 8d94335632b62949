// File: internal/services/ai/openai_provider.go
package ai

import (
	"context"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/iyunix/go-branchchat/internal/domain"
)

// OpenAIProvider talks to any OpenAI-compatible completion endpoint. The
// gateway behind LLMBaseURL multiplexes the registry's providers, so one
// client serves every model.
type OpenAIProvider struct {
	config    *Config
	llmClient *openai.Client
}

func NewOpenAIProvider(config *Config) *OpenAIProvider {
	llmConfig := openai.DefaultConfig(config.LLMKey)
	if config.LLMBaseURL != "" {
		llmConfig.BaseURL = config.LLMBaseURL
	}
	return &OpenAIProvider{
		config:    config,
		llmClient: openai.NewClientWithConfig(llmConfig),
	}
}

func (p *OpenAIProvider) StreamCompletion(ctx context.Context, req StreamRequest, onDelta func(string) error) (string, error) {
	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}
	if _, ok := LookupModel(model); !ok {
		return "", NewModelError(model, "model is not in the registry")
	}

	stream, err := p.llmClient.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    buildMessages(req),
		Temperature: p.config.Temperature,
		TopP:        p.config.TopP,
	})
	if err != nil {
		return "", NewProviderError("streaming", "failed to create stream", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return full.String(), nil
			}
			return full.String(), NewProviderError("streaming", "stream receive error", err)
		}

		if len(response.Choices) > 0 {
			delta := response.Choices[0].Delta.Content
			if delta != "" {
				full.WriteString(delta)
				if onDelta != nil {
					if cbErr := onDelta(delta); cbErr != nil {
						return full.String(), cbErr
					}
				}
			}
		}
	}
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	return nil
}

func buildMessages(req StreamRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: GetSystemPrompt(req.SystemPromptID).Content,
	})
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return messages
}
