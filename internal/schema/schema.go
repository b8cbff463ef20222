// Package schema defines the structured-output contract between Thursday
// and the generative backend: the AgentPlan shape the model must emit,
// the closed set of tool names, and the fact-extraction shape. Raw model
// output is untrusted; everything enters the system through the Parse
// functions here.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ToolName identifies one of the statically registered capabilities.
// The set is closed: adding a tool means adding a constant here and a
// handler in the tools package.
type ToolName string

const (
	ToolGetTime    ToolName = "get_time"
	ToolEcho       ToolName = "echo"
	ToolGetWeather ToolName = "get_weather"
)

// knownTools is the allowlist consulted during plan validation.
var knownTools = map[ToolName]bool{
	ToolGetTime:    true,
	ToolEcho:       true,
	ToolGetWeather: true,
}

// Known reports whether n names a registered tool.
func (n ToolName) Known() bool {
	return knownTools[n]
}

// KnownToolNames returns the allowed tool names in a stable order,
// for prompts and validation error messages.
func KnownToolNames() []string {
	return []string{string(ToolGetTime), string(ToolEcho), string(ToolGetWeather)}
}

// ToolCall is a single validated tool invocation from an AgentPlan.
type ToolCall struct {
	Name ToolName       `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the normalized outcome of dispatching one ToolCall.
// OK=false always pairs with a non-empty Error code. Results are never
// mutated after creation.
type ToolResult struct {
	OK       bool           `json:"ok"`
	ToolName string         `json:"tool_name"`
	Data     map[string]any `json:"data"`
	Error    string         `json:"error,omitempty"`
}

// OKResult builds a successful ToolResult.
func OKResult(name string, data map[string]any) ToolResult {
	if data == nil {
		data = map[string]any{}
	}
	return ToolResult{OK: true, ToolName: name, Data: data}
}

// FailResult builds a failed ToolResult with an error code.
func FailResult(name, code string) ToolResult {
	return ToolResult{OK: false, ToolName: name, Data: map[string]any{}, Error: code}
}

// FailResultData builds a failed ToolResult that also carries diagnostic data
// (e.g. the unresolvable timezone string).
func FailResultData(name, code string, data map[string]any) ToolResult {
	if data == nil {
		data = map[string]any{}
	}
	return ToolResult{OK: false, ToolName: name, Data: data, Error: code}
}

// AgentPlan is the validated structured output of one backend completion.
// Immutable once constructed; consumed by the orchestrator within one turn.
type AgentPlan struct {
	Reply      string     `json:"reply"`
	SpeechText *string    `json:"speech_text"`
	ToolCalls  []ToolCall `json:"tool_calls"`
}

// ParsePlan parses and validates raw backend output as an AgentPlan.
// The returned error describes the first contract violation found, in a
// form suitable for quoting back to the model in a repair instruction.
func ParsePlan(raw string) (*AgentPlan, error) {
	var doc struct {
		Reply      json.RawMessage `json:"reply"`
		SpeechText json.RawMessage `json:"speech_text"`
		ToolCalls  json.RawMessage `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %v", err)
	}

	plan := &AgentPlan{ToolCalls: []ToolCall{}}

	if len(doc.Reply) == 0 {
		return nil, errors.New(`missing required field "reply"`)
	}
	if err := json.Unmarshal(doc.Reply, &plan.Reply); err != nil {
		return nil, fmt.Errorf(`field "reply" must be a string: %v`, err)
	}

	// speech_text is optional on the wire; absent and explicit null both
	// yield a nil pointer (the front-end falls back to reply).
	if len(doc.SpeechText) > 0 && !isJSONNull(doc.SpeechText) {
		var s string
		if err := json.Unmarshal(doc.SpeechText, &s); err != nil {
			return nil, fmt.Errorf(`field "speech_text" must be a string or null: %v`, err)
		}
		plan.SpeechText = &s
	}

	if len(doc.ToolCalls) > 0 && !isJSONNull(doc.ToolCalls) {
		var calls []struct {
			Name json.RawMessage `json:"name"`
			Args json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(doc.ToolCalls, &calls); err != nil {
			return nil, fmt.Errorf(`field "tool_calls" must be an array of {"name", "args"} objects: %v`, err)
		}
		for i, c := range calls {
			if len(c.Name) == 0 {
				return nil, fmt.Errorf(`tool_calls[%d] is missing required field "name"`, i)
			}
			var name string
			if err := json.Unmarshal(c.Name, &name); err != nil {
				return nil, fmt.Errorf(`tool_calls[%d].name must be a string: %v`, i, err)
			}
			tn := ToolName(name)
			if !tn.Known() {
				return nil, fmt.Errorf("tool_calls[%d] names unknown tool %q (allowed: %s)",
					i, name, strings.Join(KnownToolNames(), ", "))
			}
			args := map[string]any{}
			if len(c.Args) > 0 && !isJSONNull(c.Args) {
				if err := json.Unmarshal(c.Args, &args); err != nil {
					return nil, fmt.Errorf(`tool_calls[%d].args must be a JSON object: %v`, i, err)
				}
			}
			plan.ToolCalls = append(plan.ToolCalls, ToolCall{Name: tn, Args: args})
		}
	}

	return plan, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
