package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thursdaylabs/thursday/internal/llm"
	"github.com/thursdaylabs/thursday/internal/schema"
)

// extractionSystemPrompt constrains the extraction pass to the same
// JSON-only discipline as the main plan contract. Unlike the plan, a
// malformed extraction is simply dropped, never repaired.
const extractionSystemPrompt = `You extract stable, durable facts about the user from a conversation turn.

You MUST respond with ONLY valid JSON (no markdown, no extra text) matching:
{
  "facts": [
    {"key": string, "value": any JSON value, "confidence": number between 0 and 1, "source": "explicit_user" or "assistant_inference" or "tool_result"}
  ]
}

Rules:
  - At most 5 facts.
  - Only facts likely to stay true across sessions (name, location, preferences, relationships).
  - Use snake_case keys (e.g. "name", "home_city", "preferred_units").
  - NEVER extract secrets, credentials, passwords, or financial data.
  - If nothing is worth persisting, return {"facts": []}.`

// triggerPhrases are the stability-signaling phrases that gate the
// extraction pass. The check is a cheap pre-filter so the backend is not
// invoked on every turn; extraction itself is still best-effort.
var triggerPhrases = []string{
	"my name is",
	"i am ",
	"i'm ",
	"call me",
	"i like",
	"i love",
	"i hate",
	"i prefer",
	"my favorite",
	"my favourite",
	"i live",
	"i work",
	"my birthday",
	"remember",
	"don't forget",
}

// ShouldExtract reports whether the raw user text contains a
// stability-signaling phrase worth an extraction call.
func ShouldExtract(userText string) bool {
	lower := strings.ToLower(userText)
	for _, phrase := range triggerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Extractor runs the optional fact-extraction pass after a turn. It is
// best-effort: malformed output, backend faults and storage errors are
// logged and swallowed, never surfaced to the user.
type Extractor struct {
	store   *Store
	gen     llm.Generator
	model   string
	logger  *slog.Logger
	timeout time.Duration
}

// NewExtractor creates a fact extractor.
func NewExtractor(store *Store, gen llm.Generator, model string, logger *slog.Logger) *Extractor {
	return &Extractor{
		store:   store,
		gen:     gen,
		model:   model,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// SetTimeout configures the backend call timeout for extraction.
func (e *Extractor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// MaybeExtract runs the gated extraction pass over one completed turn
// and upserts whatever it finds. Returns the number of facts written;
// zero on any failure.
func (e *Extractor) MaybeExtract(ctx context.Context, userText, finalReply string, results []schema.ToolResult) int {
	if !ShouldExtract(userText) {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.gen.Generate(ctx, llm.GenerateRequest{
		Model:  e.model,
		System: extractionSystemPrompt,
		Prompt: extractionTask(userText, finalReply, results),
	})
	if err != nil {
		e.logger.Warn("fact extraction backend call failed", "error", err)
		return 0
	}

	extraction, err := schema.ParseExtraction(raw)
	if err != nil {
		// Malformed extraction is dropped for this turn, never retried.
		e.logger.Debug("dropping malformed extraction", "error", err)
		return 0
	}
	if len(extraction.Facts) == 0 {
		return 0
	}

	count, err := e.store.UpsertFacts(extraction.Facts)
	if err != nil {
		e.logger.Warn("failed to persist extracted facts", "error", err)
		return count
	}

	if count > 0 {
		e.logger.Info("extracted facts from turn", "count", count)
	}
	return count
}

// extractionTask renders the turn transcript the extractor reasons over.
func extractionTask(userText, finalReply string, results []schema.ToolResult) string {
	var sb strings.Builder
	sb.WriteString("User said:\n")
	sb.WriteString(userText)
	sb.WriteString("\n\nAssistant replied:\n")
	sb.WriteString(finalReply)

	if len(results) > 0 {
		sb.WriteString("\n\nTool results this turn:\n")
		for _, r := range results {
			b, err := json.Marshal(r)
			if err != nil {
				continue
			}
			fmt.Fprintf(&sb, "%s\n", b)
		}
	}

	sb.WriteString("\nExtract durable facts now.")
	return sb.String()
}
