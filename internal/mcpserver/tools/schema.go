package tools

import (
	"context"
	"encoding/json"
)

// taskSchema is the Draft 2020-12 JSON Schema for the Task DTO, hand-written
// once rather than reflected from the Go struct — the struct's json tags
// don't carry maxLength/enum/format constraints, and a generator pulling
// those from doc comments would be more machinery than the one schema is
// worth.
var taskSchema = map[string]interface{}{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"title":                "Task",
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"title", "status"},
	"properties": map[string]interface{}{
		"id":          map[string]interface{}{"type": "integer"},
		"title":       map[string]interface{}{"type": "string", "maxLength": 255, "minLength": 1},
		"description": map[string]interface{}{"type": "string", "maxLength": 2000},
		"status":      map[string]interface{}{"type": "string", "enum": []string{"TODO", "IN_PROGRESS", "DONE"}},
		"dueDate":     map[string]interface{}{"type": "string", "format": "date"},
		"createdAt":   map[string]interface{}{"type": "string", "format": "date-time"},
		"updatedAt":   map[string]interface{}{"type": "string", "format": "date-time"},
	},
}

func (r *Registry) schemaTasks(ctx context.Context, _ json.RawMessage) Result {
	return okResult(taskSchema)
}
