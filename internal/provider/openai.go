package provider

import "time"

const openAIDefaultBase = "https://api.openai.com"

// NewOpenAI returns a provider backed by the OpenAI chat completions
// API. baseURL is optional and overrides the public endpoint, which
// covers proxies and compatible gateways.
func NewOpenAI(apiKey, baseURL string, timeout time.Duration) Provider {
	if baseURL == "" {
		baseURL = openAIDefaultBase
	}
	c := newChatClient("openai", baseURL, timeout)
	c.headers["Authorization"] = "Bearer " + apiKey
	return c
}
