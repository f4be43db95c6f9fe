// Package template renders text/template strings against execution contexts
// for dynamic action configuration.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/weavebit/loom/pkg/execctx"
)

// RenderWithContext renders a template string against the execution context's
// evaluation document. Results that look like JSON objects or arrays are
// decoded so downstream actions receive structured values.
func RenderWithContext(input string, ectx *execctx.Context) (any, error) {
	return Render(input, ectx.EvalData())
}

// Render renders a template string against an arbitrary data document.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("render").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"json": func(v any) (string, error) {
				encoded, err := json.Marshal(v)

				return string(encoded), err
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).
		Option("missingkey=zero").
		Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template %q: %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	return result, nil
}

// RenderString renders a template and requires the result to be a string.
func RenderString(input string, ectx *execctx.Context) (string, error) {
	rendered, err := RenderWithContext(input, ectx)
	if err != nil {
		return "", err
	}

	s, ok := rendered.(string)
	if !ok {
		encoded, err := json.Marshal(rendered)
		if err != nil {
			return "", fmt.Errorf("template %q did not render to a string", input)
		}

		return string(encoded), nil
	}

	return s, nil
}
