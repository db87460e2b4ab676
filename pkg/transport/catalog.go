package transport

import "encoding/json"

// ToolDef describes one operation as an MCP tool: the wire name, a
// human-readable description, and the JSON schema of its arguments.
// Both transports serve the same catalog so stdio and HTTP clients
// see an identical tool surface.
type ToolDef struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Catalog returns tool definitions for the given operation names, in
// order. Operations without a built-in definition (plugin operations
// registered at startup) get a permissive object schema.
func Catalog(ops []string) []ToolDef {
	defs := make([]ToolDef, 0, len(ops))
	for _, op := range ops {
		if def, ok := builtinTools[op]; ok {
			defs = append(defs, def)
			continue
		}
		defs = append(defs, ToolDef{
			Name:        op,
			Description: "Extension operation registered by the host.",
			Schema:      json.RawMessage(`{"type":"object"}`),
		})
	}
	return defs
}

var builtinTools = map[string]ToolDef{
	"browser_launch": {
		Name:        "browser_launch",
		Description: "Launch a new browser session for web automation. Sessions persist across calls and can be reused for multiple operations until closed.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"engineType": {"type": "string", "enum": ["chromium", "firefox", "webkit"], "description": "Browser engine to launch (default chromium)"},
				"headless": {"type": "boolean", "description": "Run without a visible window (default true)"},
				"userAgent": {"type": "string", "description": "Override the browser user agent"},
				"viewport": {
					"type": "object",
					"properties": {
						"width": {"type": "integer"},
						"height": {"type": "integer"}
					}
				},
				"teamId": {"type": "string", "description": "Tenant that owns the session"}
			}
		}`),
	},
	"browser_navigate": {
		Name:        "browser_navigate",
		Description: "Navigate an active browser session to a URL. The page is loaded and the resulting status and title are returned.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string", "description": "Session to operate on"},
				"url": {"type": "string", "description": "Absolute URL to load"},
				"waitUntil": {"type": "string", "enum": ["load", "domcontentloaded", "networkidle", "commit"]},
				"timeout": {"type": "number", "description": "Navigation timeout in milliseconds"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId", "url"]
		}`),
	},
	"browser_click": {
		Name:        "browser_click",
		Description: "Click an element in the browser session using a CSS selector. Supports single and multiple clicks and different mouse buttons.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"selector": {"type": "string", "description": "CSS selector of the element to click"},
				"button": {"type": "string", "enum": ["left", "right", "middle"]},
				"clickCount": {"type": "integer"},
				"timeout": {"type": "number"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId", "selector"]
		}`),
	},
	"browser_fill": {
		Name:        "browser_fill",
		Description: "Fill a form input in the browser session. Works with text inputs, textareas, and other fillable elements.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"selector": {"type": "string"},
				"value": {"type": "string", "description": "Text to write into the field"},
				"timeout": {"type": "number"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId", "selector"]
		}`),
	},
	"browser_hover": {
		Name:        "browser_hover",
		Description: "Hover the pointer over an element in the browser session, triggering any hover-activated behavior on the page.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"selector": {"type": "string"},
				"timeout": {"type": "number"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId", "selector"]
		}`),
	},
	"browser_select_option": {
		Name:        "browser_select_option",
		Description: "Select one or more options in a select element identified by a CSS selector. Returns the values actually selected.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"selector": {"type": "string"},
				"values": {"type": "array", "items": {"type": "string"}, "description": "Option values to select"},
				"timeout": {"type": "number"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId", "selector", "values"]
		}`),
	},
	"browser_evaluate": {
		Name:        "browser_evaluate",
		Description: "Execute a JavaScript expression in the browser session and return its result. Can read or manipulate the DOM programmatically.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"expression": {"type": "string", "description": "JavaScript expression to evaluate"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId", "expression"]
		}`),
	},
	"browser_screenshot": {
		Name:        "browser_screenshot",
		Description: "Capture a screenshot of the current page as base64-encoded PNG data. Optionally captures the full scrollable page.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"fullPage": {"type": "boolean", "description": "Capture the entire page instead of the viewport"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId"]
		}`),
	},
	"browser_extract_content": {
		Name:        "browser_extract_content",
		Description: "Extract content from the current page. Supports multiple formats: markdown (default), plain text, or structured JSON.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"format": {"type": "string", "enum": ["markdown", "text", "structured"]},
				"selector": {"type": "string", "description": "Limit extraction to the first matching element"},
				"maxLength": {"type": "integer", "description": "Content length cap (100 to 100000)"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId"]
		}`),
	},
	"browser_close": {
		Name:        "browser_close",
		Description: "Close a browser session and release its pooled instance. The session id is no longer valid after this call.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"browserId": {"type": "string"},
				"teamId": {"type": "string"}
			},
			"required": ["browserId"]
		}`),
	},
	"browser_status": {
		Name:        "browser_status",
		Description: "List all active browser sessions with their current state, plus pool capacity and utilization.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"teamId": {"type": "string"}
			}
		}`),
	},
	"security_status": {
		Name:        "security_status",
		Description: "Report the effective security configuration: allowed domains, rate limits, instance cap, and tenant isolation state.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	},
	"security_update_config": {
		Name:        "security_update_config",
		Description: "Apply a partial update to the security configuration at runtime. Omitted fields keep their current values.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"allowedDomains": {"type": "array", "items": {"type": "string"}},
				"rateLimiting": {
					"type": "object",
					"properties": {
						"requests": {"type": "integer"},
						"windowMs": {"type": "integer"}
					}
				},
				"maxInstances": {"type": "integer"},
				"teamIsolation": {"type": "boolean"}
			}
		}`),
	},
}
