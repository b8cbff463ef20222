package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/thursdaylabs/thursday/internal/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock pins the registry's time source for deterministic answers.
func fixedClock() time.Time {
	return time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC)
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(discardLogger(), nil, fixedClock)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := testRegistry(t)

	res := r.Dispatch(context.Background(), schema.ToolCall{Name: "launch_missiles", Args: map[string]any{}})
	if res.OK {
		t.Error("unknown tool must not succeed")
	}
	if res.Error != ErrUnknownTool {
		t.Errorf("error: got %q, want %q", res.Error, ErrUnknownTool)
	}
	if res.ToolName != "launch_missiles" {
		t.Errorf("tool_name: got %q", res.ToolName)
	}
}

func TestDispatchNormalizesPanic(t *testing.T) {
	r := testRegistry(t)
	r.register("get_time", func(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
		panic("index out of range")
	})

	res := r.Dispatch(context.Background(), schema.ToolCall{Name: schema.ToolGetTime, Args: map[string]any{}})
	if res.OK {
		t.Error("panicking capability must not succeed")
	}
	if !strings.HasPrefix(res.Error, "tool_exception: ") {
		t.Errorf("error: got %q, want tool_exception prefix", res.Error)
	}
	if !strings.Contains(res.Error, "index out of range") {
		t.Errorf("error should carry the panic value: %q", res.Error)
	}
}

func TestDispatchNormalizesError(t *testing.T) {
	r := testRegistry(t)
	r.register("echo", func(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
		return schema.ToolResult{}, errors.New("disk on fire")
	})

	res := r.Dispatch(context.Background(), schema.ToolCall{Name: schema.ToolEcho, Args: map[string]any{}})
	if res.OK {
		t.Error("erroring capability must not succeed")
	}
	if res.Error != "tool_exception: disk on fire" {
		t.Errorf("error: got %q", res.Error)
	}
}

func TestEcho(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"string text", map[string]any{"text": "hello there"}, "hello there"},
		{"missing text", map[string]any{}, ""},
		{"nil text", map[string]any{"text": nil}, ""},
		{"numeric text", map[string]any{"text": float64(42)}, "42"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Dispatch(context.Background(), schema.ToolCall{Name: schema.ToolEcho, Args: tc.args})
			if !res.OK {
				t.Fatalf("echo failed: %q", res.Error)
			}
			if got := res.Data["text"]; got != tc.want {
				t.Errorf("text: got %v, want %q", got, tc.want)
			}
		})
	}
}

func TestGetTime(t *testing.T) {
	r := testRegistry(t)

	res := r.Dispatch(context.Background(), schema.ToolCall{
		Name: schema.ToolGetTime,
		Args: map[string]any{"timezone": "America/Chicago"},
	})
	if !res.OK {
		t.Fatalf("get_time failed: %q", res.Error)
	}

	if got := res.Data["utc_iso"]; got != "2024-01-15T18:30:00Z" {
		t.Errorf("utc_iso: got %v", got)
	}
	// January is CST, UTC-6.
	if got := res.Data["local_iso"]; got != "2024-01-15T12:30:00-06:00" {
		t.Errorf("local_iso: got %v", got)
	}
	if got := res.Data["utc_offset_seconds"]; got != -6*3600 {
		t.Errorf("utc_offset_seconds: got %v", got)
	}
	if got := res.Data["tz"]; got != "America/Chicago" {
		t.Errorf("tz: got %v", got)
	}
}

func TestGetTimeMissingTimezone(t *testing.T) {
	r := testRegistry(t)

	for _, args := range []map[string]any{
		{},
		{"timezone": ""},
		{"timezone": "   "},
		{"timezone": 99},
	} {
		res := r.Dispatch(context.Background(), schema.ToolCall{Name: schema.ToolGetTime, Args: args})
		if res.OK {
			t.Errorf("args %v should fail", args)
		}
		if res.Error != ErrMissingLocation {
			t.Errorf("args %v: error got %q, want %q", args, res.Error, ErrMissingLocation)
		}
	}
}

func TestGetTimeUnknownTimezone(t *testing.T) {
	r := testRegistry(t)

	res := r.Dispatch(context.Background(), schema.ToolCall{
		Name: schema.ToolGetTime,
		Args: map[string]any{"timezone": "Mars/Olympus_Mons"},
	})
	if res.OK {
		t.Error("unresolvable zone must not succeed")
	}
	if res.Error != ErrUnknownTimezone {
		t.Errorf("error: got %q, want %q", res.Error, ErrUnknownTimezone)
	}
	// The failed result still carries the offending zone for the model
	// to acknowledge.
	if got := res.Data["tz"]; got != "Mars/Olympus_Mons" {
		t.Errorf("data tz: got %v", got)
	}
}
