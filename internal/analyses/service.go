package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/documents"
	"contract-analyzer/internal/extract"
	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/llm/proxy"
	"contract-analyzer/internal/queue"
	"contract-analyzer/internal/shared/metrics"
	"contract-analyzer/internal/shared/storage/object"
	"contract-analyzer/internal/shared/telemetry"
)

const (
	ErrorCodeInternal = "INTERNAL_ERROR"
	ErrorCodeStorage  = "STORAGE_ERROR"

	maxErrorMessage = 500
)

// UsageRecorder counts completed analyses per user.
type UsageRecorder interface {
	RecordAnalysis(ctx context.Context, userID string) error
}

// Service contains business logic for analyses.
type Service struct {
	Repo      Repo
	Pipeline  *Pipeline
	Extractor *extract.Extractor
	DocRepo   documents.DocumentsRepo
	Store     object.ObjectStore
	Usage     UsageRecorder
	// Queue receives async jobs. Nil processes them in a goroutine.
	Queue    queue.Client
	Provider string
	Model    string
	Now      func() time.Time
}

// AnalyzeUpload runs the pipeline synchronously and records the outcome.
func (s *Service) AnalyzeUpload(ctx context.Context, userID string, up documents.Upload) (AnalysisResult, error) {
	if userID == "" {
		return AnalysisResult{}, ErrInvalidInput
	}
	startedAt := s.now()
	analysis := Analysis{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  up.FileName,
		FileSize:  int64(len(up.Data)),
		Status:    StatusProcessing,
		Provider:  s.Provider,
		Model:     s.Model,
		CreatedAt: startedAt,
		StartedAt: &startedAt,
	}
	metrics.IncAnalysisStarted()
	s.logStatus(ctx, analysis, StatusProcessing, "received->processing", nil)

	result, err := s.pipeline().Analyze(ctx, extract.Document{
		Data:     up.Data,
		MimeType: up.MimeType,
		FileName: up.FileName,
		Size:     int64(len(up.Data)),
	})
	completedAt := s.now()
	if err != nil {
		failure := failureFor(err)
		analysis.Status = StatusFailed
		analysis.ErrorCode = failure.Code
		analysis.ErrorMessage = failure.Message
		analysis.ErrorRetryable = failure.Retryable
		analysis.CompletedAt = &completedAt
		s.persist(ctx, analysis)
		s.recordFailure(ctx, analysis, failure, startedAt, completedAt)
		return AnalysisResult{}, err
	}

	result.ID = analysis.ID
	analysis.Status = StatusCompleted
	analysis.Result = &result
	analysis.CompletedAt = &completedAt
	s.persist(ctx, analysis)
	s.recordSuccess(ctx, analysis, startedAt, completedAt)
	return result, nil
}

// Create records a queued analysis for a stored document and schedules it.
func (s *Service) Create(ctx context.Context, userID, documentID string) (Analysis, error) {
	if userID == "" || documentID == "" {
		return Analysis{}, ErrInvalidInput
	}
	doc, err := s.DocRepo.GetByID(ctx, userID, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, fmt.Errorf("document lookup id=%s: %w", documentID, err)
	}

	analysis := Analysis{
		ID:         uuid.NewString(),
		UserID:     userID,
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		FileSize:   doc.SizeBytes,
		Status:     StatusQueued,
		Provider:   s.Provider,
		Model:      s.Model,
		CreatedAt:  s.now(),
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		return Analysis{}, fmt.Errorf("create analysis: %w", err)
	}
	s.logStatus(ctx, analysis, StatusQueued, "created->queued", nil)

	if s.Queue == nil {
		go func(bg context.Context, id string) {
			_ = s.Process(bg, id)
		}(detach(ctx), analysis.ID)
		return analysis, nil
	}

	err = s.Queue.Send(ctx, queue.NewAnalysisMessage(analysis.ID, doc.ID, telemetry.RequestID(ctx), s.now()))
	if err != nil {
		failure := Failure{Code: ErrorCodeInternal, Message: sanitizeError(err)}
		if failErr := s.Repo.Fail(telemetry.Detach(ctx), analysis.ID, failure, s.now()); failErr != nil {
			telemetry.Error("analysis.fail_update", map[string]any{"analysis_id": analysis.ID, "error": failErr})
		}
		return Analysis{}, fmt.Errorf("enqueue analysis: %w", err)
	}
	return analysis, nil
}

// Process runs a queued analysis. Completed analyses are left untouched so
// redelivered jobs are harmless.
func (s *Service) Process(ctx context.Context, analysisID string) (err error) {
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("analysis lookup id=%s: %w", analysisID, err)
	}
	if analysis.Status == StatusCompleted || analysis.Status == StatusFailed {
		return nil
	}

	startedAt := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.fail(ctx, analysis, err, startedAt)
		}
	}()

	if err := s.Repo.MarkProcessing(ctx, analysisID, startedAt); err != nil {
		return fmt.Errorf("set processing id=%s: %w", analysisID, err)
	}
	metrics.IncAnalysisStarted()
	s.logStatus(ctx, analysis, StatusProcessing, "queued->processing", nil)

	if s.DocRepo == nil || s.Store == nil {
		err := errors.New("missing document store dependencies")
		s.fail(ctx, analysis, err, startedAt)
		return err
	}
	doc, err := s.DocRepo.GetByID(ctx, analysis.UserID, analysis.DocumentID)
	if err != nil {
		err = fmt.Errorf("document lookup id=%s: %w", analysis.DocumentID, err)
		s.fail(ctx, analysis, err, startedAt)
		return err
	}

	text, err := s.extractor().ExtractStored(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName)
	if err != nil {
		s.fail(ctx, analysis, err, startedAt)
		return err
	}
	result, err := s.pipeline().AnalyzeText(ctx, text, FileMeta{FileName: doc.FileName, FileSize: doc.SizeBytes})
	if err != nil {
		s.fail(ctx, analysis, err, startedAt)
		return err
	}

	result.ID = analysis.ID
	completedAt := s.now()
	if err := s.Repo.Complete(ctx, analysisID, result, completedAt); err != nil {
		err = fmt.Errorf("set analysis result id=%s: %w", analysisID, err)
		s.fail(ctx, analysis, err, startedAt)
		return err
	}
	s.recordSuccess(ctx, analysis, startedAt, completedAt)
	return nil
}

// Get returns an analysis owned by userID.
func (s *Service) Get(ctx context.Context, userID, analysisID string) (Analysis, error) {
	if userID == "" || analysisID == "" {
		return Analysis{}, ErrInvalidInput
	}
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return analysis, nil
}

// List returns the user's analyses, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) fail(ctx context.Context, analysis Analysis, err error, startedAt time.Time) {
	failure := failureFor(err)
	completedAt := s.now()
	if updateErr := s.Repo.Fail(telemetry.Detach(ctx), analysis.ID, failure, completedAt); updateErr != nil {
		telemetry.Error("analysis.fail_update", map[string]any{
			"analysis_id": analysis.ID,
			"error":       updateErr,
			"cause":       failure.Message,
		})
	}
	s.recordFailure(ctx, analysis, failure, startedAt, completedAt)
}

func (s *Service) recordSuccess(ctx context.Context, analysis Analysis, startedAt, completedAt time.Time) {
	if s.Usage != nil {
		if err := s.Usage.RecordAnalysis(ctx, analysis.UserID); err != nil {
			telemetry.Warn("usage.increment_failed", map[string]any{
				"request_id":  telemetry.RequestID(ctx),
				"user_id":     analysis.UserID,
				"analysis_id": analysis.ID,
				"error":       err,
			})
		}
	}
	duration := durationMs(startedAt, completedAt)
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(duration)
	s.logStatus(ctx, analysis, StatusCompleted, "processing->completed", map[string]any{"duration_ms": duration})
}

func (s *Service) recordFailure(ctx context.Context, analysis Analysis, failure Failure, startedAt, completedAt time.Time) {
	duration := durationMs(startedAt, completedAt)
	metrics.IncAnalysisFailed(failure.Code)
	metrics.ObserveAnalysisDurationMs(duration)
	s.logStatus(ctx, analysis, StatusFailed, "processing->failed", map[string]any{
		"duration_ms": duration,
		"error_code":  failure.Code,
		"error":       failure.Message,
	})
}

func (s *Service) logStatus(ctx context.Context, analysis Analysis, status, transition string, extra map[string]any) {
	fields := map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           analysis.UserID,
		"analysis_id":       analysis.ID,
		"status":            status,
		"status_transition": transition,
	}
	if analysis.DocumentID != "" {
		fields["document_id"] = analysis.DocumentID
	}
	for k, v := range extra {
		fields[k] = v
	}
	if status == StatusFailed {
		telemetry.Warn("analysis.status", fields)
		return
	}
	telemetry.Info("analysis.status", fields)
}

// persist stores a synchronous analysis. Storage failures are logged; the
// caller still gets the pipeline outcome.
func (s *Service) persist(ctx context.Context, analysis Analysis) {
	if s.Repo == nil {
		return
	}
	if err := s.Repo.Create(telemetry.Detach(ctx), analysis); err != nil {
		telemetry.Error("analysis.persist_failed", map[string]any{
			"request_id":  telemetry.RequestID(ctx),
			"analysis_id": analysis.ID,
			"error":       err,
		})
	}
}

// detach is telemetry.Detach that also keeps the caller's proxy token, so
// in-process jobs can still reach the model in proxied mode.
func detach(ctx context.Context) context.Context {
	bg := telemetry.Detach(ctx)
	if token := proxy.TokenFromContext(ctx); token != "" {
		bg = proxy.WithToken(bg, token)
	}
	return bg
}

func (s *Service) pipeline() *Pipeline {
	if s.Pipeline != nil {
		return s.Pipeline
	}
	return &Pipeline{Extractor: s.extractor()}
}

func (s *Service) extractor() *extract.Extractor {
	if s.Extractor != nil {
		return s.Extractor
	}
	return extract.New(0)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func failureFor(err error) Failure {
	if ae, ok := apperr.As(err); ok {
		msg := ae.Message
		if ae.Details != "" {
			msg += ": " + ae.Details
		}
		return Failure{Code: string(ae.Kind), Message: sanitize(msg), Retryable: ae.Retryable}
	}
	code := ErrorCodeInternal
	if errors.Is(err, documents.ErrNotFound) || strings.Contains(err.Error(), "set analysis result") {
		code = ErrorCodeStorage
	}
	return Failure{Code: code, Message: sanitizeError(err)}
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitize(err.Error())
}

func sanitize(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	return llm.Truncate(msg, maxErrorMessage)
}
