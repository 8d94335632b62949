// File: internal/services/ai/models.go
package ai

// ModelConfig describes one selectable chat model.
type ModelConfig struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextWindow int    `json:"contextWindow"`
	Provider      string `json:"provider"`
}

// ModelRegistry lists the models the server will accept. The registry is the
// single source of truth: requests naming a model outside it are rejected
// before any provider call.
var ModelRegistry = []ModelConfig{
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextWindow: 200000, Provider: "anthropic"},
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextWindow: 200000, Provider: "anthropic"},
	{ID: "gpt-4o", Name: "ChatGPT 4o", ContextWindow: 128000, Provider: "openai"},
	{ID: "gpt-4o-mini", Name: "ChatGPT 4o mini", ContextWindow: 128000, Provider: "openai"},
	{ID: "llama-3.3-70b-versatile", Name: "Llama 3.3 70B (Fastest)", ContextWindow: 128000, Provider: "groq"},
	{ID: "deepseek-chat", Name: "DeepSeek Chat", ContextWindow: 128000, Provider: "deepseek"},
}

// LookupModel returns the registry entry for id.
func LookupModel(id string) (ModelConfig, bool) {
	for _, m := range ModelRegistry {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}
