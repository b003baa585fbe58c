package analyses

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/extract"
	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/shared/metrics"
	"contract-analyzer/internal/shared/telemetry"
)

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, doc extract.Document) (string, error)
}

// Pipeline runs extraction, generation and assembly for one document.
type Pipeline struct {
	Extractor TextExtractor
	Generator llm.Generator
	Now       func() time.Time
	NewID     func() string
}

// Analyze runs the full pipeline on an uploaded document.
func (p *Pipeline) Analyze(ctx context.Context, doc extract.Document) (AnalysisResult, error) {
	if p.Extractor == nil {
		return AnalysisResult{}, errors.New("analysis pipeline has no extractor")
	}
	text, err := p.Extractor.Extract(ctx, doc)
	if err != nil {
		return AnalysisResult{}, err
	}
	size := doc.Size
	if size == 0 {
		size = int64(len(doc.Data))
	}
	return p.AnalyzeText(ctx, text, FileMeta{FileName: doc.FileName, FileSize: size})
}

// AnalyzeText runs the pipeline from extracted text onward.
func (p *Pipeline) AnalyzeText(ctx context.Context, text string, meta FileMeta) (AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return AnalysisResult{}, apperr.New(apperr.KindEmptyContent, "No text content could be extracted from the file", "")
	}
	if p.Generator == nil {
		return AnalysisResult{}, errors.New("analysis pipeline has no generator")
	}

	req := llm.NewTextRequest(BuildPrompt(text, meta.FileName))
	parsed, err := p.generateParsed(ctx, req)
	if err != nil {
		return AnalysisResult{}, err
	}
	return AssembleResult(parsed, meta, p.now(), p.newID), nil
}

// generateParsed allows exactly one regeneration when the output cannot be
// parsed even after repair.
func (p *Pipeline) generateParsed(ctx context.Context, req llm.GenerationRequest) (map[string]any, error) {
	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			metrics.IncLLMRegenerations()
			telemetry.Warn("analysis.regenerate", map[string]any{
				"request_id": telemetry.RequestID(ctx),
				"error":      llm.Truncate(parseErr.Error(), 200),
			})
		}
		raw, err := p.Generator.Generate(ctx, req)
		if err != nil {
			return nil, llm.Classify(err)
		}
		text, err := NormalizeResponse(raw)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseTolerant(text)
		if err == nil {
			return parsed, nil
		}
		parseErr = err
	}
	return nil, apperr.Wrap(apperr.KindInvalidResponse, "Invalid response format from AI", parseErr)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}
