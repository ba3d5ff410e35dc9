package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"interviewprep/internal/auth"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	WebSearchHTTPTimeout = 10 * time.Second
	WebSearchRateLimit   = 5
	WebSearchRateWindow  = time.Minute
	maxFetchBody         = 512 * 1024
)

// SearchConfig enables the optional Google provider; DuckDuckGo needs no key.
type SearchConfig struct {
	GoogleAPIKey         string
	GoogleSearchEngineID string
}

// NewTools returns the tools available to the resume agent.
func NewTools(ctx context.Context, cfg SearchConfig, log *zap.SugaredLogger) []tool.BaseTool {
	var tools []tool.BaseTool
	if ws := NewWebSearch(ctx, cfg, log); ws != nil {
		tools = append(tools, ws)
	}
	return tools
}

// NewWebSearch builds the web_search tool, falling back from Google to DuckDuckGo.
func NewWebSearch(ctx context.Context, cfg SearchConfig, log *zap.SugaredLogger) tool.InvokableTool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	googleTool := newGoogleSearch(ctx, cfg, log)
	duckTool := newDDGSearch(ctx, log)
	if googleTool == nil && duckTool == nil {
		log.Warnf("web search tool disabled: no search providers available")
		return nil
	}

	ws := &webSearchTool{
		google:  googleTool,
		duck:    duckTool,
		http:    resty.New().SetTimeout(WebSearchHTTPTimeout).SetHeader("User-Agent", "interviewprep-websearch/1.0"),
		limiter: newToolRateLimiter(WebSearchRateLimit, WebSearchRateWindow),
		log:     log,
	}

	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for what employers expect from a role; " +
			"falls back to another provider if needed; " +
			"can fetch a URL directly.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to fetch",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

type webSearchTool struct {
	google  tool.InvokableTool
	duck    tool.InvokableTool
	http    *resty.Client
	limiter *toolRateLimiter
	log     *zap.SugaredLogger
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	key := "anonymous"
	if id, ok := auth.UserFromContext(ctx); ok {
		key = fmt.Sprintf("user:%d", id.UserID)
	}
	if !w.limiter.Allow(key) {
		return "", errors.New("web search rate limit exceeded, please retry in a minute")
	}

	if looksLikeURL(query) {
		if content, err := w.fetchURL(ctx, query); err == nil {
			return content, nil
		} else {
			w.log.Debugf("web url loader failed: %v", err)
		}
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		if result, err := w.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			w.log.Warnf("google search failed: %v", err)
		}
	}
	if w.duck != nil {
		if result, err := w.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			w.log.Warnf("duckduckgo search failed: %v", err)
		}
	}
	return "", errors.New("no search provider succeeded")
}

func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}
	resp, err := w.http.R().SetContext(ctx).Get(parsed.String())
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch url: %s", resp.Status())
	}
	body := resp.Body()
	if len(body) > maxFetchBody {
		body = body[:maxFetchBody]
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func newDDGSearch(ctx context.Context, log *zap.SugaredLogger) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    WebSearchHTTPTimeout,
	})
	if err != nil {
		log.Warnf("duckduckgo search disabled: %v", err)
		return nil
	}
	return duckTool
}

func newGoogleSearch(ctx context.Context, cfg SearchConfig, log *zap.SugaredLogger) tool.InvokableTool {
	if cfg.GoogleAPIKey == "" || cfg.GoogleSearchEngineID == "" {
		log.Infof("google search tool disabled: missing api key or search engine id")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         cfg.GoogleAPIKey,
		SearchEngineID: cfg.GoogleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Warnf("google search disabled: %v", err)
		return nil
	}
	return googleTool
}
