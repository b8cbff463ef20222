package tools

import (
	"context"
	"strings"
	"time"

	"github.com/thursdaylabs/thursday/internal/schema"
)

// getTimeCapability resolves the current time in a caller-supplied IANA
// zone. The UTC offset is computed from the resolved instant, so it is
// correct across daylight-saving transitions.
func getTimeCapability(clock func() time.Time) Capability {
	return func(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
		name := string(schema.ToolGetTime)

		raw, present := args["timezone"]
		tz, _ := raw.(string)
		tz = strings.TrimSpace(tz)
		if !present || tz == "" {
			return schema.FailResult(name, ErrMissingLocation), nil
		}

		loc, err := time.LoadLocation(tz)
		if err != nil {
			return schema.FailResultData(name, ErrUnknownTimezone, map[string]any{"tz": tz}), nil
		}

		now := clock()
		local := now.In(loc)
		_, offset := local.Zone()

		return schema.OKResult(name, map[string]any{
			"utc_iso":            now.UTC().Format(time.RFC3339),
			"local_iso":          local.Format(time.RFC3339),
			"tz":                 loc.String(),
			"utc_offset_seconds": offset,
		}), nil
	}
}
