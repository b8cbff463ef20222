package schema

import (
	"encoding/json"
	"fmt"
)

// FactSource records where a fact came from.
type FactSource string

const (
	SourceExplicitUser       FactSource = "explicit_user"
	SourceAssistantInference FactSource = "assistant_inference"
	SourceToolResult         FactSource = "tool_result"
)

// Valid reports whether s is a recognized provenance value.
func (s FactSource) Valid() bool {
	switch s {
	case SourceExplicitUser, SourceAssistantInference, SourceToolResult:
		return true
	}
	return false
}

// Fact is a single durable belief about the user or session. Value is
// kept as raw JSON so arbitrary shapes survive the round trip to storage.
type Fact struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
	Source     FactSource      `json:"source"`
}

// MaxExtractedFacts bounds how many facts a single extraction pass may yield.
const MaxExtractedFacts = 5

// FactExtraction is the structured output of the fact-extraction pass.
type FactExtraction struct {
	Facts []Fact `json:"facts"`
}

// ParseExtraction parses raw extractor output. Unlike ParsePlan this is
// never repaired: the caller drops the whole extraction on error.
// Well-formed output is normalized: the list is capped at
// MaxExtractedFacts, confidence is clamped to [0,1], and an unrecognized
// source falls back to assistant_inference.
func ParseExtraction(raw string) (*FactExtraction, error) {
	var doc struct {
		Facts []struct {
			Key        string          `json:"key"`
			Value      json.RawMessage `json:"value"`
			Confidence *float64        `json:"confidence"`
			Source     string          `json:"source"`
		} `json:"facts"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("extraction output is not valid JSON: %v", err)
	}

	out := &FactExtraction{}
	for _, f := range doc.Facts {
		if len(out.Facts) >= MaxExtractedFacts {
			break
		}

		confidence := 1.0
		if f.Confidence != nil {
			confidence = *f.Confidence
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		source := FactSource(f.Source)
		if !source.Valid() {
			source = SourceAssistantInference
		}

		value := f.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}

		out.Facts = append(out.Facts, Fact{
			Key:        f.Key,
			Value:      value,
			Confidence: confidence,
			Source:     source,
		})
	}

	return out, nil
}
