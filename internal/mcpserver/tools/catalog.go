package tools

// Tool is the discovery record an MCP client receives from tools/list: the
// name it calls, a human-readable description, and the JSON Schema its
// arguments must satisfy.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var emptyObjectSchema = map[string]interface{}{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": false,
	"properties":           map[string]interface{}{},
}

var taskInputSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"title", "status"},
	"properties": map[string]interface{}{
		"title":       map[string]interface{}{"type": "string", "maxLength": 255, "minLength": 1},
		"description": map[string]interface{}{"type": "string", "maxLength": 2000},
		"status":      map[string]interface{}{"type": "string", "enum": []string{"TODO", "IN_PROGRESS", "DONE"}},
		"dueDate":     map[string]interface{}{"type": "string", "format": "date"},
	},
}

var submitSchema = map[string]interface{}{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"tasks"},
	"properties": map[string]interface{}{
		"tasks": map[string]interface{}{"type": "array", "items": taskInputSchema},
	},
}

var submitFromFileSchema = map[string]interface{}{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"path"},
	"properties": map[string]interface{}{
		"path": map[string]interface{}{"type": "string", "description": "path to a .json file containing an array of task objects"},
	},
}

var jobStatusSchema = map[string]interface{}{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"jobId"},
	"properties": map[string]interface{}{
		"jobId": map[string]interface{}{"type": "string"},
	},
}

var listSchema = map[string]interface{}{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"page":     map[string]interface{}{"type": "integer", "minimum": 1},
		"pageSize": map[string]interface{}{"type": "integer", "minimum": 1},
		"status":   map[string]interface{}{"type": "string", "enum": []string{"TODO", "IN_PROGRESS", "DONE"}},
	},
}

// catalog is the fixed, ordered set of tool declarations tools/list returns.
// Order matches Names() so clients see a stable listing.
var catalog = []Tool{
	{Name: "mcp-help", Description: "Lists the available tools and a suggested workflow for using them.", InputSchema: emptyObjectSchema},
	{Name: "mcp-schema-tasks", Description: "Returns the JSON Schema for a task object.", InputSchema: emptyObjectSchema},
	{Name: "mcp-tasks-summary", Description: "Returns task counts grouped by status.", InputSchema: emptyObjectSchema},
	{Name: "mcp-tasks-list", Description: "Lists tasks, optionally filtered by status, with pagination.", InputSchema: listSchema},
	{Name: "mcp-tasks", Description: "Submits one or more tasks for asynchronous creation and returns a job id to poll.", InputSchema: submitSchema},
	{Name: "mcp-tasks-from-file", Description: "Submits tasks read from a JSON file on disk for asynchronous creation.", InputSchema: submitFromFileSchema},
	{Name: "mcp-job-status", Description: "Returns the current status and progress of a previously submitted batch job.", InputSchema: jobStatusSchema},
}

// Catalog returns the full tool discovery list in the same order as Names().
func (r *Registry) Catalog() []Tool {
	return catalog
}
