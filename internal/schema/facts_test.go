package schema

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseExtraction(t *testing.T) {
	raw := `{"facts":[
		{"key":"user_name","value":"Alex","confidence":0.95,"source":"explicit_user"},
		{"key":"home_city","value":{"name":"Austin","state":"TX"},"confidence":0.7,"source":"assistant_inference"}
	]}`

	ext, err := ParseExtraction(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ext.Facts) != 2 {
		t.Fatalf("facts: got %d, want 2", len(ext.Facts))
	}
	if ext.Facts[0].Key != "user_name" || string(ext.Facts[0].Value) != `"Alex"` {
		t.Errorf("fact 0: got %+v", ext.Facts[0])
	}
	if ext.Facts[0].Source != SourceExplicitUser {
		t.Errorf("source: got %q", ext.Facts[0].Source)
	}
	// Structured values survive as raw JSON.
	if !strings.Contains(string(ext.Facts[1].Value), `"Austin"`) {
		t.Errorf("fact 1 value: got %s", ext.Facts[1].Value)
	}
}

func TestParseExtractionNormalizes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Fact
	}{
		{
			name: "confidence clamped high",
			raw:  `{"facts":[{"key":"k","value":1,"confidence":3.5,"source":"explicit_user"}]}`,
			want: Fact{Key: "k", Confidence: 1, Source: SourceExplicitUser},
		},
		{
			name: "confidence clamped low",
			raw:  `{"facts":[{"key":"k","value":1,"confidence":-0.2,"source":"explicit_user"}]}`,
			want: Fact{Key: "k", Confidence: 0, Source: SourceExplicitUser},
		},
		{
			name: "missing confidence defaults to 1",
			raw:  `{"facts":[{"key":"k","value":1,"source":"tool_result"}]}`,
			want: Fact{Key: "k", Confidence: 1, Source: SourceToolResult},
		},
		{
			name: "bad source falls back to inference",
			raw:  `{"facts":[{"key":"k","value":1,"confidence":0.5,"source":"divine_revelation"}]}`,
			want: Fact{Key: "k", Confidence: 0.5, Source: SourceAssistantInference},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ext, err := ParseExtraction(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := ext.Facts[0]
			if got.Key != tc.want.Key || got.Confidence != tc.want.Confidence || got.Source != tc.want.Source {
				t.Errorf("got %+v, want key=%q confidence=%v source=%q",
					got, tc.want.Key, tc.want.Confidence, tc.want.Source)
			}
		})
	}
}

func TestParseExtractionCapsList(t *testing.T) {
	var facts []string
	for i := 0; i < MaxExtractedFacts+3; i++ {
		facts = append(facts, fmt.Sprintf(`{"key":"k%d","value":%d,"confidence":1,"source":"explicit_user"}`, i, i))
	}
	raw := `{"facts":[` + strings.Join(facts, ",") + `]}`

	ext, err := ParseExtraction(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ext.Facts) != MaxExtractedFacts {
		t.Errorf("facts: got %d, want %d", len(ext.Facts), MaxExtractedFacts)
	}
}

func TestParseExtractionInvalid(t *testing.T) {
	if _, err := ParseExtraction("Sure! Here are the facts I noticed:"); err == nil {
		t.Error("prose output should fail to parse")
	}
	if _, err := ParseExtraction(`{"facts":`); err == nil {
		t.Error("truncated JSON should fail to parse")
	}
}

func TestParseExtractionEmptyValue(t *testing.T) {
	ext, err := ParseExtraction(`{"facts":[{"key":"k","confidence":1,"source":"explicit_user"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(ext.Facts[0].Value) != "null" {
		t.Errorf("value: got %s, want null", ext.Facts[0].Value)
	}
}
