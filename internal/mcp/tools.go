package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = mcp.Items(map[string]any{"type": "string"})

var personaSchema = mcp.Properties(map[string]any{
	"id":                  map[string]any{"type": "string"},
	"name":                map[string]any{"type": "string"},
	"age":                 map[string]any{"type": "integer"},
	"occupation":          map[string]any{"type": "string"},
	"background":          map[string]any{"type": "string"},
	"traits":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"interests":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"skills":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"values":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"communication_style": map[string]any{"type": "string"},
	"personality_type":    map[string]any{"type": "string"},
	"goals":               map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"challenges":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"relationships":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
})

var extractToolDef = mcp.NewTool("persona_extract",
	mcp.WithDescription("Extract a structured persona from text blocks and links using the configured LLM. "+
		"Identical inputs are served from the cache. The persona is not saved; pass it to persona_save."),
	mcp.WithArray("text_blocks", stringItems,
		mcp.Description("Up to 50 blocks of text about the person, each at most 10000 characters")),
	mcp.WithArray("links", stringItems,
		mcp.Description("Up to 50 http(s) URLs related to the person")),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithOpenWorldHintAnnotation(true),
)

var saveToolDef = mcp.NewTool("persona_save",
	mcp.WithDescription("Save a persona. An id is generated when the persona has none; saving over an existing id fails."),
	mcp.WithObject("persona", mcp.Required(), personaSchema,
		mcp.Description("The persona to save, usually the output of persona_extract")),
	mcp.WithDestructiveHintAnnotation(false),
)

var getToolDef = mcp.NewTool("persona_get",
	mcp.WithDescription("Fetch a saved persona by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Persona id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var metadataToolDef = mcp.NewTool("persona_metadata",
	mcp.WithDescription("Fetch the metadata record of a saved persona: timestamps, source counts, size and checksum."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Persona id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var listToolDef = mcp.NewTool("persona_list",
	mcp.WithDescription("List saved personas, newest first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip (default 0)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var updateToolDef = mcp.NewTool("persona_update",
	mcp.WithDescription("Replace a saved persona. The persona must already exist; its created_at is kept."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Persona id")),
	mcp.WithObject("persona", mcp.Required(), personaSchema, mcp.Description("The replacement persona")),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
)

var deleteToolDef = mcp.NewTool("persona_delete",
	mcp.WithDescription("Delete a saved persona and its metadata."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Persona id")),
	mcp.WithDestructiveHintAnnotation(true),
)

var chatToolDef = mcp.NewTool("persona_chat",
	mcp.WithDescription("Send a message to a saved persona and get its in-character reply. "+
		"No conversation state is kept; pass earlier turns in history."),
	mcp.WithString("persona_id", mcp.Required(), mcp.Description("Persona id")),
	mcp.WithString("message", mcp.Required(), mcp.Description("Message, at most 5000 characters")),
	mcp.WithArray("history",
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"role":    map[string]any{"type": "string", "enum": []string{"user", "assistant"}},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"role", "content"},
		}),
		mcp.Description("Up to 50 earlier turns, oldest first")),
	mcp.WithOpenWorldHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("persona_export",
	mcp.WithDescription("Export every saved persona with its metadata to a JSONL file."),
	mcp.WithString("path", mcp.Description("Output .jsonl file (default: a timestamped file in the exports directory)")),
	mcp.WithDestructiveHintAnnotation(false),
)

var importToolDef = mcp.NewTool("persona_import",
	mcp.WithDescription("Import personas from a JSONL export. Mode 'error' imports nothing if any id already exists; "+
		"mode 'replace' overwrites existing personas."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Input .jsonl file")),
	mcp.WithString("mode", mcp.Enum("error", "replace"), mcp.Description("Conflict handling (default 'error')")),
	mcp.WithDestructiveHintAnnotation(true),
)

var cacheStatsToolDef = mcp.NewTool("cache_stats",
	mcp.WithDescription("Report the number of cached extractions and their keys."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var cacheClearToolDef = mcp.NewTool("cache_clear",
	mcp.WithDescription("Drop every cached extraction."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithIdempotentHintAnnotation(true),
)
