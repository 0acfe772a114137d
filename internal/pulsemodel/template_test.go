package pulsemodel

import (
	"testing"

	"golang.org/x/exp/rand"
)

func TestUnmarshalTemplateByTag(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"flat", `{
            "pulse-type": "flat",
            "start":  { "random-type": "constant-float", "value": { "const": 1 } },
            "width":  { "random-type": "constant-float", "value": { "const": 2 } },
            "height": { "random-type": "constant-float", "value": { "const": 3 } }
        }`},
		{"triangular", `{
            "pulse-type": "triangular",
            "start":     { "random-type": "constant-float", "value": { "const": 1 } },
            "width":     { "random-type": "constant-float", "value": { "const": 2 } },
            "peak_time": { "random-type": "constant-float", "value": { "const": 0.5 } },
            "height":    { "random-type": "constant-float", "value": { "const": 3 } }
        }`},
		{"gaussian", `{
            "pulse-type": "gaussian",
            "height":    { "random-type": "constant-float", "value": { "const": 10 } },
            "peak_time": { "random-type": "constant-float", "value": { "const": 50 } },
            "sd":        { "random-type": "constant-float", "value": { "const": 2 } }
        }`},
		{"back-to-back-exp", `{
            "pulse-type": "back-to-back-exp",
            "peak_height": { "random-type": "constant-float", "value": { "const": 100 } },
            "peak_time":   { "random-type": "constant-float", "value": { "const": 500 } },
            "spread":      { "random-type": "constant-float", "value": { "const": 3 } },
            "falling":     { "random-type": "constant-float", "value": { "const": 2 } },
            "rising":      { "random-type": "constant-float", "value": { "const": 1.5 } }
        }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template, err := UnmarshalTemplate([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if _, err := template.Sample(rand.New(rand.NewSource(1)), 0); err != nil {
				t.Fatalf("sample: %v", err)
			}
		})
	}
}

func TestUnmarshalTemplateUnknownTag(t *testing.T) {
	if _, err := UnmarshalTemplate([]byte(`{"pulse-type": "sawtooth"}`)); err == nil {
		t.Fatal("want error for unknown pulse-type")
	}
}
