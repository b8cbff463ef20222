package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thursdaylabs/thursday/internal/memory"
	"github.com/thursdaylabs/thursday/internal/schema"
)

// systemPrompt is the immutable output contract. It is sent on every
// request, including repairs; the repair instruction only changes the
// task text, never the contract.
const systemPrompt = `You are THURSDAY (Tool-Handling, User-Respecting, Self-Hosted Digital Assistant (Yours)), a local-first assistant.

You MUST respond with ONLY valid JSON (no markdown, no extra text). The JSON MUST match this exact shape:
{
  "reply": string,
  "speech_text": string or null,
  "tool_calls": [
    {"name": "get_time" or "echo" or "get_weather", "args": object}
  ]
}

Allowed tools:

1) get_time
  - Use when the user asks for the current time or date somewhere.
  - args must be {"timezone": "<IANA zone, e.g. America/Chicago>"}
2) echo
  - Use when the user asks you to repeat something.
  - args must be {"text": "<string to echo>"}
3) get_weather
  - Use when the user asks about weather conditions or forecasts.
  - args must be {"location": "<place name>"} and may include "units" ("imperial" or "metric") and "days" (1-7).

Rules:
  - If you use a tool, keep "reply" short and confirm what you are doing.
  - If no tool is needed, set "tool_calls" to [] and answer normally in "reply".
  - "speech_text" is a short spoken version of the reply; set it to null to fall back to "reply".
  - Never invent tools.
  - Never include keys other than "reply", "speech_text" and "tool_calls".`

// contractRules restates the output contract inside repair instructions.
const contractRules = `Rules you must follow:
  - Respond with ONLY valid JSON, no markdown fences, no commentary.
  - The JSON must have exactly the keys "reply" (string), "speech_text" (string or null) and "tool_calls" (array).
  - Each tool_calls entry must be {"name": <allowed tool>, "args": <object>}.
  - Allowed tools: ` + "get_time, echo, get_weather."

// firstPassTask renders the context-augmented task text for the plan
// request: known facts, recent conversation, then the user's message.
func firstPassTask(mctx *memory.Context, userText string) string {
	var sb strings.Builder

	if len(mctx.Facts) > 0 {
		sb.WriteString("Known facts about the user:\n")
		for key, value := range mctx.Facts {
			fmt.Fprintf(&sb, "- %s: %s\n", key, value)
		}
		sb.WriteString("\n")
	}

	if len(mctx.RecentMessages) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range mctx.RecentMessages {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("User: ")
	sb.WriteString(userText)
	return sb.String()
}

// followUpTask embeds the original question and every tool result, and
// demands a direct final answer with no further tool calls.
func followUpTask(userText string, results []schema.ToolResult) string {
	var sb strings.Builder

	sb.WriteString("The user asked:\n")
	sb.WriteString(userText)
	sb.WriteString("\n\nYou already called tools. Their results:\n")
	for _, r := range results {
		b, err := json.Marshal(r)
		if err != nil {
			fmt.Fprintf(&sb, "%s: (unserializable result)\n", r.ToolName)
			continue
		}
		fmt.Fprintf(&sb, "%s\n", b)
	}
	sb.WriteString("\nAnswer the user's question directly using these results. ")
	sb.WriteString("If a tool failed, acknowledge it gracefully. ")
	sb.WriteString(`"tool_calls" MUST be [] in your response.`)
	return sb.String()
}

// repairInstruction builds the corrective task text for one repair
// attempt: the exact malformed output, the specific failure, and the
// contract rules. In final-answer mode it additionally asserts that
// tool_calls must be empty, since the schema itself cannot express that.
func repairInstruction(rawOutput, failure string, finalAnswer bool) string {
	var sb strings.Builder

	sb.WriteString("Your previous output violated the output contract.\n\n")
	sb.WriteString("Your output was:\n")
	sb.WriteString(rawOutput)
	sb.WriteString("\n\nThe problem:\n")
	sb.WriteString(failure)
	sb.WriteString("\n\n")
	sb.WriteString(contractRules)
	if finalAnswer {
		sb.WriteString("\n  - This is the final answer: \"tool_calls\" MUST be an empty array [].")
	}
	sb.WriteString("\n\nProduce a corrected response now.")
	return sb.String()
}
