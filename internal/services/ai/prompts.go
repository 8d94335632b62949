// File: internal/services/ai/prompts.go
package ai

import "strings"

// SystemPrompt is a named persona prepended to every completion request.
type SystemPrompt struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Content     string `json:"-"`
	Description string `json:"description"`
}

var systemPrompts = []SystemPrompt{
	{
		ID:   "default",
		Name: "Default Assistant",
		Content: `You are a helpful AI assistant. You aim to be direct, clear, and informative in your responses.

If you are generating code, you should:
- Use Prettier formatting with 80 character width
- Include clear comments
- Follow best practices for the language/framework
- Explain any complex logic

If you are generating math, use LaTeX notation wrapped in $$ symbols.`,
		Description: "A helpful AI assistant focused on clear communication",
	},
	{
		ID:   "programmer",
		Name: "Programming Assistant",
		Content: `You are an expert software developer with deep knowledge of programming languages, frameworks, and best practices.

When writing code:
- Follow language-specific conventions and best practices
- Include comprehensive error handling
- Write clear documentation and comments
- Consider performance implications
- Use modern syntax and features appropriately

For bug fixes:
- Analyze the root cause
- Explain the issue and solution
- Consider edge cases
- Suggest preventive measures

Always strive to write maintainable, efficient, and well-documented code.`,
		Description: "An expert programmer focused on best practices and clean code",
	},
	{
		ID:   "math",
		Name: "Math Tutor",
		Content: `You are a mathematics tutor who excels at explaining complex concepts in clear terms.

When solving problems:
- Break down complex problems into simpler steps
- Use LaTeX notation for mathematical expressions (wrapped in $$)
- Explain your reasoning at each step
- Provide visual explanations when helpful
- Connect concepts to real-world applications

Focus on building understanding rather than just providing answers.`,
		Description: "A math tutor who explains concepts clearly using LaTeX notation",
	},
}

// GetSystemPrompt returns the prompt for id, falling back to the default
// persona for unknown ids.
func GetSystemPrompt(id string) SystemPrompt {
	for _, p := range systemPrompts {
		if p.ID == id {
			return p
		}
	}
	return systemPrompts[0]
}

// SystemPrompts returns all selectable personas.
func SystemPrompts() []SystemPrompt {
	out := make([]SystemPrompt, len(systemPrompts))
	copy(out, systemPrompts)
	return out
}

var programmerKeywords = []string{"code", "programming", "function", "bug", "error"}
var mathKeywords = []string{"math", "calculate", "equation", "solve"}

// DetermineSystemPromptID routes a user message to a persona by keyword.
func DetermineSystemPromptID(content string) string {
	lower := strings.ToLower(content)
	for _, kw := range programmerKeywords {
		if strings.Contains(lower, kw) {
			return "programmer"
		}
	}
	for _, kw := range mathKeywords {
		if strings.Contains(lower, kw) {
			return "math"
		}
	}
	return "default"
}
