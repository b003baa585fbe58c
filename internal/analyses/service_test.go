package analyses

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/documents"
	"contract-analyzer/internal/extract"
	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/llm/proxy"
	"contract-analyzer/internal/queue"
	"contract-analyzer/internal/shared/storage/object/local"
	"contract-analyzer/internal/usage"
)

type fakeQueue struct {
	sent []queue.Message
	err  error
}

func (q *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

type serviceFixture struct {
	svc     *Service
	repo    *MemoryRepo
	docs    *documents.Service
	usage   *usage.Service
	queue   *fakeQueue
	gen     *fakeGenerator
	userID  string
	content string
}

func newServiceFixture(t *testing.T, responses ...string) *serviceFixture {
	t.Helper()
	store := local.New(t.TempDir())
	docRepo := documents.NewMemoryRepo()
	extractor := extract.New(0)
	gen := &fakeGenerator{responses: responses}
	q := &fakeQueue{}
	counter := usage.NewService()
	repo := NewMemoryRepo()

	f := &serviceFixture{
		repo:    repo,
		docs:    &documents.Service{Store: store, Repo: docRepo, Validator: extractor, Now: func() time.Time { return fixedNow }},
		usage:   counter,
		queue:   q,
		gen:     gen,
		userID:  "user-1",
		content: "Service agreement between Acme Corp and Beta LLC. Payment is due in 30 days.",
	}
	f.svc = &Service{
		Repo:      repo,
		Pipeline:  &Pipeline{Extractor: extractor, Generator: gen, Now: func() time.Time { return fixedNow }, NewID: fixedID},
		Extractor: extractor,
		DocRepo:   docRepo,
		Store:     store,
		Usage:     counter,
		Queue:     q,
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
		Now:       func() time.Time { return fixedNow },
	}
	return f
}

func (f *serviceFixture) upload(t *testing.T) documents.Document {
	t.Helper()
	doc, err := f.docs.Upload(context.Background(), f.userID, "msa.txt", "text/plain", []byte(f.content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return doc
}

func TestServiceAnalyzeUploadPersistsCompleted(t *testing.T) {
	f := newServiceFixture(t, geminiEnvelope(t, `{"riskLevel":"Low","parties":["Acme Corp","Beta LLC"]}`))
	ctx := context.Background()

	result, err := f.svc.AnalyzeUpload(ctx, f.userID, documents.Upload{
		FileName: "msa.txt",
		MimeType: "text/plain",
		Data:     []byte(f.content),
	})
	if err != nil {
		t.Fatalf("analyze upload: %v", err)
	}

	stored, err := f.repo.GetByID(ctx, result.ID)
	if err != nil {
		t.Fatalf("stored analysis: %v", err)
	}
	if stored.Status != StatusCompleted || stored.Result == nil || stored.Result.RiskLevel != RiskLow {
		t.Fatalf("unexpected stored analysis %+v", stored)
	}
	if stored.FileSize != int64(len(f.content)) || stored.Provider != "gemini" {
		t.Fatalf("unexpected provenance %+v", stored)
	}
	if got := f.usage.Get(ctx, f.userID).ContractsAnalyzed; got != 1 {
		t.Fatalf("expected usage 1, got %d", got)
	}
}

func TestServiceAnalyzeUploadPersistsFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.gen.err = &llm.StatusError{StatusCode: 429}
	ctx := context.Background()

	_, err := f.svc.AnalyzeUpload(ctx, f.userID, documents.Upload{
		FileName: "msa.txt",
		MimeType: "text/plain",
		Data:     []byte(f.content),
	})
	if !apperr.Is(err, apperr.KindRateLimit) {
		t.Fatalf("expected RATE_LIMIT, got %v", err)
	}

	items, err := f.repo.ListByUser(ctx, f.userID, 10, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one stored analysis, got %d (%v)", len(items), err)
	}
	if items[0].Status != StatusFailed || items[0].ErrorCode != string(apperr.KindRateLimit) || items[0].ErrorRetryable {
		t.Fatalf("unexpected failure record %+v", items[0])
	}
	if got := f.usage.Get(ctx, f.userID).ContractsAnalyzed; got != 0 {
		t.Fatalf("failed analyses must not count, got %d", got)
	}
}

func TestServiceCreateEnqueuesAndProcess(t *testing.T) {
	f := newServiceFixture(t, geminiEnvelope(t, `{"riskLevel":"High","keyTerms":["Net 30"]}`))
	ctx := context.Background()
	doc := f.upload(t)

	created, err := f.svc.Create(ctx, f.userID, doc.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusQueued || created.FileName != "msa.txt" {
		t.Fatalf("unexpected created analysis %+v", created)
	}
	if len(f.queue.sent) != 1 || f.queue.sent[0].AnalysisID != created.ID || f.queue.sent[0].DocumentID != doc.ID || f.queue.sent[0].Version != queue.MessageVersion {
		t.Fatalf("unexpected queue messages %+v", f.queue.sent)
	}

	if err := f.svc.Process(ctx, created.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, err := f.svc.Get(ctx, f.userID, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.Result == nil || got.Result.ID != created.ID {
		t.Fatalf("unexpected processed analysis %+v", got)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("expected timestamps on completed analysis")
	}

	// A redelivered job leaves the completed record alone.
	if err := f.svc.Process(ctx, created.ID); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if f.gen.calls != 1 {
		t.Fatalf("redelivery must not regenerate, got %d calls", f.gen.calls)
	}
	if n := f.usage.Get(ctx, f.userID).ContractsAnalyzed; n != 1 {
		t.Fatalf("expected usage 1, got %d", n)
	}
}

func TestServiceProcessRecordsFailure(t *testing.T) {
	f := newServiceFixture(t, geminiEnvelope(t, "not json at all"))
	ctx := context.Background()
	doc := f.upload(t)

	created, err := f.svc.Create(ctx, f.userID, doc.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Process(ctx, created.ID); !apperr.Is(err, apperr.KindInvalidResponse) {
		t.Fatalf("expected INVALID_RESPONSE, got %v", err)
	}
	got, err := f.repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorCode != string(apperr.KindInvalidResponse) {
		t.Fatalf("unexpected failure record %+v", got)
	}
	if !strings.HasPrefix(got.ErrorMessage, "Invalid response format from AI") {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
}

func TestServiceCreateQueueFailureMarksFailed(t *testing.T) {
	f := newServiceFixture(t)
	f.queue.err = errors.New("queue unavailable")
	ctx := context.Background()
	doc := f.upload(t)

	if _, err := f.svc.Create(ctx, f.userID, doc.ID); err == nil {
		t.Fatalf("expected enqueue error")
	}
	items, _ := f.repo.ListByUser(ctx, f.userID, 10, 0)
	if len(items) != 1 || items[0].Status != StatusFailed || items[0].ErrorCode != ErrorCodeInternal {
		t.Fatalf("unexpected records %+v", items)
	}
}

func TestServiceCreateUnknownDocument(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.Create(context.Background(), f.userID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceGetHidesOtherUsers(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc := f.upload(t)
	created, err := f.svc.Create(ctx, f.userID, doc.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Get(ctx, "someone-else", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailureForPlainError(t *testing.T) {
	got := failureFor(errors.New("line one\nline two"))
	if got.Code != ErrorCodeInternal || got.Message != "line one line two" || got.Retryable {
		t.Fatalf("unexpected failure %+v", got)
	}
	long := failureFor(errors.New(string(bytes.Repeat([]byte("x"), 900))))
	if len(long.Message) != maxErrorMessage {
		t.Fatalf("expected message truncated to %d, got %d", maxErrorMessage, len(long.Message))
	}
}

func TestServiceInProcessJobKeepsCallerProxyToken(t *testing.T) {
	f := newServiceFixture(t)
	envelope := geminiEnvelope(t, `{"riskLevel":"High"}`)
	auths := make(chan string, 4)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")
		_, _ = w.Write([]byte(envelope))
	}))
	defer upstream.Close()

	client, err := proxy.NewClient(upstream.URL, "", nil)
	if err != nil {
		t.Fatalf("proxy client: %v", err)
	}
	f.svc.Pipeline.Generator = client
	f.svc.Queue = nil
	doc := f.upload(t)

	ctx := proxy.WithToken(context.Background(), "caller-jwt")
	created, err := f.svc.Create(ctx, f.userID, doc.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var stored Analysis
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stored, err = f.repo.GetByID(context.Background(), created.ID)
		if err == nil && (stored.Status == StatusCompleted || stored.Status == StatusFailed) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stored.Status != StatusCompleted {
		t.Fatalf("expected completed, got status=%s code=%s", stored.Status, stored.ErrorCode)
	}
	if got := <-auths; got != "Bearer caller-jwt" {
		t.Fatalf("expected caller token upstream, got %q", got)
	}
}
