package models

// JSONSchema describes the configuration contract an action handler declares
// when it registers. Config blobs are validated against it before execution.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	Pattern     string               `json:"pattern,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// RegisteredAction carries the metadata an action handler exposes through
// the registry.
type RegisteredAction struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Schema      *JSONSchema `json:"schema,omitempty"`
}
