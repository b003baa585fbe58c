package analyses

import (
	"encoding/json"
	"testing"

	"contract-analyzer/internal/apperr"
)

func TestNormalizeResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "candidate list", raw: `{"candidates":[{"content":{"parts":[{"text":"{\"a\":1}"},{"text":"ignored"}]}}]}`, want: `{"a":1}`},
		{name: "choice list", raw: `{"choices":[{"message":{"content":"hello"}}]}`, want: "hello"},
		{name: "direct text", raw: `{"text":"direct"}`, want: "direct"},
		{name: "raw string", raw: `"just text"`, want: "just text"},
		{name: "opaque object", raw: `{"riskLevel":"Low"}`, want: `{"riskLevel":"Low"}`},
		{name: "candidates win over text", raw: `{"candidates":[{"content":{"parts":[{"text":"c"}]}}],"text":"t"}`, want: "c"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeResponse(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("NormalizeResponse: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeResponseBlankIsEmptyResponse(t *testing.T) {
	cases := []string{
		`{"candidates":[]}`,
		`{"candidates":[{"content":{"parts":[{"text":"   "}]}}]}`,
		`{"choices":[{"message":{"content":""}}]}`,
		`""`,
		`null`,
		``,
	}
	for _, raw := range cases {
		_, err := NormalizeResponse(json.RawMessage(raw))
		if !apperr.Is(err, apperr.KindEmptyResponse) {
			t.Fatalf("raw %q: expected EMPTY_RESPONSE, got %v", raw, err)
		}
	}
}
