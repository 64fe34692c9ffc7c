package provider

import "time"

const openRouterDefaultBase = "https://openrouter.ai/api"

// OpenRouterOptions configures the OpenRouter provider. Referer and
// AppName populate the optional attribution headers OpenRouter uses
// for app rankings.
type OpenRouterOptions struct {
	APIKey  string
	BaseURL string
	Referer string
	AppName string
}

// NewOpenRouter returns a provider backed by the OpenRouter API.
func NewOpenRouter(opts OpenRouterOptions, timeout time.Duration) Provider {
	base := opts.BaseURL
	if base == "" {
		base = openRouterDefaultBase
	}
	c := newChatClient("openrouter", base, timeout)
	c.headers["Authorization"] = "Bearer " + opts.APIKey
	if opts.Referer != "" {
		c.headers["HTTP-Referer"] = opts.Referer
	}
	if opts.AppName != "" {
		c.headers["X-Title"] = opts.AppName
	}
	return c
}
