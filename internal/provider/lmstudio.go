package provider

import "time"

const lmStudioDefaultBase = "http://localhost:1234"

// NewLMStudio returns a provider backed by LM Studio's local
// OpenAI-compatible server. No API key is involved.
func NewLMStudio(baseURL string, timeout time.Duration) Provider {
	if baseURL == "" {
		baseURL = lmStudioDefaultBase
	}
	c := newChatClient("lmstudio", baseURL, timeout)
	// Local models tend to advertise reasoning in their names, e.g.
	// "deepseek-r1-distill-thinking".
	c.hints = []string{"o3", "o4", "reason", "think"}
	c.snapshotStream = true
	return c
}
