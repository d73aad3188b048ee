package validation

import (
	"testing"
)

func TestValidateResponseBody(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"learner_id": "learner-1",
			"object_id":  "obj-1",
			"response":   "receive",
		}
	}

	tests := []struct {
		name    string
		mutate  func(map[string]interface{})
		wantErr bool
	}{
		{"minimal valid body", func(m map[string]interface{}) {}, false},
		{"missing learner", func(m map[string]interface{}) { delete(m, "learner_id") }, true},
		{"blank object", func(m map[string]interface{}) { m["object_id"] = "  " }, true},
		{"missing response", func(m map[string]interface{}) { delete(m, "response") }, true},
		{"empty response allowed", func(m map[string]interface{}) { m["response"] = "" }, false},
		{"negative latency", func(m map[string]interface{}) { m["latency_ms"] = float64(-5) }, true},
		{"zero latency allowed", func(m map[string]interface{}) { m["latency_ms"] = float64(0) }, false},
		{"cue level too high", func(m map[string]interface{}) { m["cue_level"] = float64(4) }, true},
		{"cue level in range", func(m map[string]interface{}) { m["cue_level"] = float64(3) }, false},
		{"unknown mode", func(m map[string]interface{}) { m["session_mode"] = "cramming" }, true},
		{"known mode", func(m map[string]interface{}) { m["session_mode"] = "evaluation" }, false},
		{"empty mode falls through", func(m map[string]interface{}) { m["session_mode"] = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			tt.mutate(body)

			msg := validateResponseBody(body, 2000)
			if tt.wantErr && msg == "" {
				t.Errorf("expected a validation message, got none")
			}
			if !tt.wantErr && msg != "" {
				t.Errorf("unexpected validation message: %q", msg)
			}
		})
	}
}

func TestValidateResponseBodyLength(t *testing.T) {
	body := map[string]interface{}{
		"learner_id": "learner-1",
		"object_id":  "obj-1",
		"response":   "aaaaaaaaaaaa",
	}
	if msg := validateResponseBody(body, 10); msg == "" {
		t.Error("expected over-length response to be rejected")
	}
}
