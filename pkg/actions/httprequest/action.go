// Package httprequest provides the HTTP request action handler backing
// API_CALL nodes.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/template"
)

const defaultTimeoutSeconds = 30

// ActionFactory creates Action instances.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string {
	return "http_request"
}

func (f *ActionFactory) Metadata() *models.RegisteredAction {
	return &models.RegisteredAction{
		ID:          "http_request",
		Name:        "HTTP Request",
		Description: "Performs an HTTP request to a URL with optional headers and body. URL and body support templating.",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"url": {
					Type:        "string",
					Description: "Target URL. Supports templating against the execution context.",
				},
				"method": {
					Type:        "string",
					Description: "HTTP method",
					Default:     "GET",
					Enum:        []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
				},
				"headers": {
					Type:        "object",
					Description: "Request headers. Values support templating.",
				},
				"body": {
					Type:        "string",
					Description: "Request body template.",
				},
				"timeout": {
					Type:        "number",
					Description: "Request timeout in seconds.",
					Default:     defaultTimeoutSeconds,
				},
			},
			Required: []string{"url"},
		},
	}
}

func (f *ActionFactory) Create(config map[string]any) (registry.Action, error) {
	return NewAction(config)
}

// Action performs one HTTP request per execution.
type Action struct {
	url     string
	method  string
	headers map[string]string
	body    string
	timeout time.Duration
	client  *http.Client
}

func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	action := &Action{
		url:     url,
		method:  http.MethodGet,
		headers: make(map[string]string),
		timeout: defaultTimeoutSeconds * time.Second,
	}

	if method, ok := config["method"].(string); ok && method != "" {
		action.method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				action.headers[k] = s
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		action.body = body
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		action.timeout = time.Duration(timeout) * time.Second
	}

	action.client = &http.Client{Timeout: action.timeout}

	return action, nil
}

func (a *Action) Execute(ctx context.Context, ectx *execctx.Context, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "http_request", "method", a.method)

	url, err := template.RenderString(a.url, ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	var body io.Reader

	if a.body != "" {
		rendered, err := template.RenderString(a.body, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, a.method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range a.headers {
		rendered, err := template.RenderString(v, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %q: %w", k, err)
		}

		req.Header.Set(k, rendered)
	}

	logger.InfoContext(ctx, "Executing HTTP request", "url", url)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(raw)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return result, fmt.Errorf("request returned status %d", resp.StatusCode)
	}

	return result, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}

	return out
}
