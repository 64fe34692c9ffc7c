package tool

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	searchURL       = "https://duckduckgo.com/html/?q="
	searchUserAgent = "Mozilla/5.0"
	domCap          = 200_000
)

var (
	resultAnchorRe = regexp.MustCompile(`(?is)<a[^>]*class="result__a"[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)
	htmlTagRe      = regexp.MustCompile(`<[^>]+>`)
)

func webTools() []Tool {
	return []Tool{
		&builtin{
			name: "web_get",
			spec: Spec{Args: map[string]string{"url": "str", "max_bytes": "int(optional)"}},
			run:  webGet,
		},
		&builtin{
			name: "web_search",
			spec: Spec{Args: map[string]string{"query": "str", "max_results": "int(optional)"}},
			run:  webSearch,
		},
		&builtin{
			name: "browser_headless",
			spec: Spec{Args: map[string]string{"url": "str", "engine": "str(optional)", "timeout": "int(optional)"}},
			run:  browserHeadless,
		},
	}
}

func webGet(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	target := argString(args, "url", "")
	maxBytes := argInt(args, "max_bytes", defaultReadCap)
	return fetchURL(ctx, env, target, maxBytes), nil
}

// fetchURL never returns an error: network failures belong in the
// result map so the model can react to them.
func fetchURL(ctx context.Context, env Env, target string, maxBytes int) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return map[string]any{"url": target, "error": err.Error()}
	}
	resp, err := env.httpClient().Do(req)
	if err != nil {
		return map[string]any{"url": target, "error": err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return map[string]any{"url": target, "error": err.Error()}
	}
	truncated := len(data) > maxBytes
	if truncated {
		data = data[:maxBytes]
	}
	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "�")
	}
	return map[string]any{
		"url":       target,
		"status":    resp.StatusCode,
		"truncated": truncated,
		"content":   content,
	}
}

func webSearch(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	query := argString(args, "query", "")
	maxResults := argInt(args, "max_results", 5)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+url.QueryEscape(query), nil)
	if err != nil {
		return map[string]any{"query": query, "error": err.Error()}, nil
	}
	req.Header.Set("User-Agent", searchUserAgent)
	resp, err := env.httpClient().Do(req)
	if err != nil {
		return map[string]any{"query": query, "error": err.Error()}, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return map[string]any{"query": query, "error": err.Error()}, nil
	}

	return map[string]any{"query": query, "results": parseSearchResults(string(body), maxResults)}, nil
}

// parseSearchResults scrapes result anchors out of the DuckDuckGo HTML
// endpoint. Crude, and good enough for an agent's quick lookups.
func parseSearchResults(html string, maxResults int) []any {
	results := make([]any, 0, maxResults)
	for _, m := range resultAnchorRe.FindAllStringSubmatch(html, -1) {
		title := strings.TrimSpace(htmlTagRe.ReplaceAllString(m[2], ""))
		results = append(results, map[string]any{"title": title, "url": m[1]})
		if len(results) >= maxResults {
			break
		}
	}
	return results
}

func browserHeadless(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	target := argString(args, "url", "")
	engine := argString(args, "engine", "")
	timeout := time.Duration(argInt(args, "timeout", 60)) * time.Second

	var engines []string
	switch engine {
	case "", "auto", "chromium":
		engines = []string{"chromium", "chromium-browser", "google-chrome", "chrome"}
	default:
		engines = []string{engine}
	}

	for _, bin := range engines {
		argv := []string{bin, "--headless=new", "--disable-gpu", "--dump-dom", target}
		res, err := runArgv(ctx, argv, env.WorkspaceRoot, timeout)
		if err != nil {
			return nil, err
		}
		if res.notFound || res.timedOut || res.failure != "" || res.code != 0 || res.stdout == "" {
			continue
		}
		dom := res.stdout
		truncated := len(dom) > domCap
		if truncated {
			dom = dom[:domCap]
		}
		return map[string]any{
			"engine":    bin,
			"status":    "ok",
			"dom":       dom,
			"truncated": truncated,
		}, nil
	}

	out := fetchURL(ctx, env, target, domCap)
	out["engine"] = "fallback_web_get"
	return out, nil
}
