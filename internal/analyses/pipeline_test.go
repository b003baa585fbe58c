package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/extract"
	"contract-analyzer/internal/llm"
)

type fakeGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.GenerationRequest) (json.RawMessage, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Text())
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no canned response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return json.RawMessage(resp), nil
}

// geminiEnvelope wraps text the way generateContent returns it.
func geminiEnvelope(t *testing.T, text string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return string(raw)
}

func newTestPipeline(gen llm.Generator) *Pipeline {
	return &Pipeline{
		Extractor: extract.New(0),
		Generator: gen,
		Now:       func() time.Time { return fixedNow },
		NewID:     fixedID,
	}
}

func TestAnalyzeSimpleNDA(t *testing.T) {
	content := "This is a simple NDA between Alice and Bob effective 2024-01-01."
	data := []byte(content + strings.Repeat(" ", 1024-len(content)))
	gen := &fakeGenerator{responses: []string{geminiEnvelope(t,
		`{"riskLevel":"Low","parties":["Alice","Bob"],"contractType":"NDA","importantDates":{"effectiveDate":"2024-01-01"}}`)}}

	result, err := newTestPipeline(gen).Analyze(context.Background(), extract.Document{
		Data:     data,
		MimeType: "text/plain",
		FileName: "nda.txt",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.RiskLevel != RiskLow {
		t.Fatalf("expected Low risk, got %q", result.RiskLevel)
	}
	if len(result.Parties) != 2 || result.Parties[0].Name != "Alice" || result.Parties[1].Name != "Bob" {
		t.Fatalf("unexpected parties %+v", result.Parties)
	}
	if result.FileName != "nda.txt" || result.FileSize != 1024 {
		t.Fatalf("unexpected provenance %q %d", result.FileName, result.FileSize)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generation, got %d", gen.calls)
	}
	if !strings.Contains(gen.prompts[0], content) || !strings.Contains(gen.prompts[0], "nda.txt") {
		t.Fatalf("prompt must carry the document text and file name")
	}
}

func TestAnalyzeUnsupportedTypeSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := newTestPipeline(gen).Analyze(context.Background(), extract.Document{
		Data:     []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a},
		MimeType: "image/png",
		FileName: "scan.png",
	})
	if !apperr.Is(err, apperr.KindUnsupportedFileType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called, got %d calls", gen.calls)
	}
}

func TestAnalyzeTextBlankIsEmptyContent(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := newTestPipeline(gen).AnalyzeText(context.Background(), " \n\t ", FileMeta{FileName: "blank.txt"})
	if !apperr.Is(err, apperr.KindEmptyContent) {
		t.Fatalf("expected EMPTY_CONTENT, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called")
	}
}

func TestAnalyzeTextRegeneratesOnce(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		geminiEnvelope(t, "I cannot produce JSON today."),
		geminiEnvelope(t, `{"riskLevel":"High"}`),
	}}
	result, err := newTestPipeline(gen).AnalyzeText(context.Background(), "contract text", FileMeta{FileName: "c.txt"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if gen.calls != 2 || result.RiskLevel != RiskHigh {
		t.Fatalf("expected regenerated High result after 2 calls, got %d calls %q", gen.calls, result.RiskLevel)
	}
}

func TestAnalyzeTextInvalidAfterRegeneration(t *testing.T) {
	gen := &fakeGenerator{responses: []string{geminiEnvelope(t, "still not json")}}
	_, err := newTestPipeline(gen).AnalyzeText(context.Background(), "contract text", FileMeta{})
	if !apperr.Is(err, apperr.KindInvalidResponse) {
		t.Fatalf("expected INVALID_RESPONSE, got %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("expected exactly one regeneration, got %d calls", gen.calls)
	}
}

func TestAnalyzeTextRepairsTruncatedOutput(t *testing.T) {
	gen := &fakeGenerator{responses: []string{geminiEnvelope(t, "```json\n{\"riskLevel\":\"High\",\"keyTerms\":[\"Non-compete")}}
	result, err := newTestPipeline(gen).AnalyzeText(context.Background(), "contract text", FileMeta{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if gen.calls != 1 || result.RiskLevel != RiskHigh || len(result.KeyTerms) != 1 {
		t.Fatalf("unexpected repaired result %+v after %d calls", result, gen.calls)
	}
}

func TestAnalyzeTextClassifiesGeneratorErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{name: "rate limit", err: &llm.StatusError{StatusCode: 429}, kind: apperr.KindRateLimit},
		{name: "auth", err: llm.ErrAuthRequired, kind: apperr.KindAuthRequired},
		{name: "server", err: &llm.StatusError{StatusCode: 500}, kind: apperr.KindAIRequest},
		{name: "network", err: errors.New("connection reset"), kind: apperr.KindAIRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			_, err := newTestPipeline(gen).AnalyzeText(context.Background(), "contract text", FileMeta{})
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			if gen.calls != 1 {
				t.Fatalf("generator errors must not trigger regeneration, got %d calls", gen.calls)
			}
		})
	}
}

func TestAnalyzeTextEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{responses: []string{geminiEnvelope(t, "   ")}}
	_, err := newTestPipeline(gen).AnalyzeText(context.Background(), "contract text", FileMeta{})
	if !apperr.Is(err, apperr.KindEmptyResponse) {
		t.Fatalf("expected EMPTY_RESPONSE, got %v", err)
	}
}
