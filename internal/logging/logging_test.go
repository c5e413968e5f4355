package logging

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestRedact(t *testing.T) {
	input := map[string]any{
		"username": "ana",
		"Password": "hunter2",
		"profile": map[string]any{
			"latitude":  51.5,
			"longitude": -0.1,
			"city":      "London",
		},
		"tokens": []any{map[string]any{"token": "abc"}},
	}

	got := Redact(input)
	want := map[string]any{
		"username": "ana",
		"Password": redacted,
		"profile": map[string]any{
			"latitude":  redacted,
			"longitude": redacted,
			"city":      "London",
		},
		"tokens": []any{map[string]any{"token": redacted}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Redact() = %#v, want %#v", got, want)
	}
	if input["Password"] != "hunter2" {
		t.Fatal("Redact must not modify its input")
	}
}

func TestRedactJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{"empty", "", nil},
		{"object", `{"authorization":"Bearer x","cafe_id":"c1"}`, map[string]any{"authorization": redacted, "cafe_id": "c1"}},
		{"not json", "cafe_photos=...", map[string]any{"non_json_bytes": 15}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactJSON([]byte(tt.body))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RedactJSON(%q) = %#v, want %#v", tt.body, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
