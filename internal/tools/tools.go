// Package tools provides the closed tool registry and the dispatcher
// that maps validated tool calls onto capability implementations.
//
// Dispatch is total: every call yields a ToolResult, never a panic or an
// error. Capability-internal faults are normalized to error codes so the
// orchestrator can fold them into the follow-up prompt.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thursdaylabs/thursday/internal/schema"
)

// Error codes shared across capabilities.
const (
	ErrUnknownTool      = "unknown_tool"
	ErrMissingLocation  = "missing_location"
	ErrUnknownTimezone  = "unknown_timezone"
	ErrGeocodeNoResults = "geocode_no_results"
)

// Capability executes one tool invocation. It receives only its own
// argument map and must not touch shared orchestrator or memory state.
// Expected failures (bad arguments, unresolvable lookups) are reported
// as a failed ToolResult; a returned error means an unexpected fault and
// is normalized to a tool_exception result by the dispatcher.
type Capability func(ctx context.Context, args map[string]any) (schema.ToolResult, error)

// Registry binds tool names to capabilities. It holds no state between
// dispatches.
type Registry struct {
	caps   map[schema.ToolName]Capability
	logger *slog.Logger
}

// NewRegistry creates a registry with the built-in capabilities bound.
// The clock is injected so time answers are testable; weather may be nil
// when no forecast collaborator is configured (get_weather then reports
// a tool_exception rather than being silently absent; the tool set is
// statically known).
func NewRegistry(logger *slog.Logger, weather *WeatherClient, clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	r := &Registry{
		caps:   make(map[schema.ToolName]Capability),
		logger: logger,
	}
	r.register(schema.ToolGetTime, getTimeCapability(clock))
	r.register(schema.ToolEcho, echoCapability())
	r.register(schema.ToolGetWeather, weatherCapability(weather))
	return r
}

func (r *Registry) register(name schema.ToolName, fn Capability) {
	r.caps[name] = fn
}

// Dispatch executes a validated ToolCall against exactly one capability.
// An unknown name returns unknown_tool without invoking anything; any
// fault inside a capability (returned error or panic) is converted to a
// tool_exception result.
func (r *Registry) Dispatch(ctx context.Context, call schema.ToolCall) (result schema.ToolResult) {
	name := string(call.Name)

	fn, ok := r.caps[call.Name]
	if !ok {
		r.logger.Warn("dispatch refused unknown tool", "tool", name)
		return schema.FailResult(name, ErrUnknownTool)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("capability panicked", "tool", name, "panic", p)
			result = schema.FailResult(name, fmt.Sprintf("tool_exception: %v", p))
		}
	}()

	start := time.Now()
	res, err := fn(ctx, call.Args)
	if err != nil {
		r.logger.Warn("capability fault", "tool", name, "error", err)
		return schema.FailResult(name, fmt.Sprintf("tool_exception: %v", err))
	}

	r.logger.Debug("dispatched tool",
		"tool", name, "ok", res.OK, "error", res.Error,
		"duration_ms", time.Since(start).Milliseconds())
	return res
}

// echoCapability returns the text argument unchanged. Missing text is
// treated as the empty string; it never fails.
func echoCapability() Capability {
	return func(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
		text := ""
		if v, ok := args["text"]; ok && v != nil {
			if s, ok := v.(string); ok {
				text = s
			} else {
				text = fmt.Sprint(v)
			}
		}
		return schema.OKResult(string(schema.ToolEcho), map[string]any{"text": text}), nil
	}
}
