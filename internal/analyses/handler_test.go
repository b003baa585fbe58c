package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/shared/server/middleware"
)

func newAnalysisRouter(t *testing.T, f *serviceFixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth("dev"))
	h := NewHandler(f.svc, 0)
	h.polls = nil
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func uploadBody(t *testing.T, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func guest(req *http.Request) *http.Request {
	req.Header.Set("X-Guest-Id", "test-guest")
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestAnalyzeEndpointReturnsResult(t *testing.T) {
	f := newServiceFixture(t, geminiEnvelope(t, `{"riskLevel":"Low","parties":["Alice","Bob"]}`))
	router := newAnalysisRouter(t, f)

	body, ct := uploadBody(t, "nda.txt", "text/plain", []byte("NDA between Alice and Bob."))
	req := guest(httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body))
	req.Header.Set("Content-Type", ct)
	resp := serve(router, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result AnalysisResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.RiskLevel != RiskLow || result.FileName != "nda.txt" || len(result.Parties) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAnalyzeEndpointUnsupportedType(t *testing.T) {
	f := newServiceFixture(t)
	router := newAnalysisRouter(t, f)

	body, ct := uploadBody(t, "photo.png", "image/png", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	req := guest(httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body))
	req.Header.Set("Content-Type", ct)
	resp := serve(router, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "UNSUPPORTED_FILE_TYPE") {
		t.Fatalf("expected kind in body, got %s", resp.Body.String())
	}
	if f.gen.calls != 0 {
		t.Fatalf("generator must not be called")
	}
}

func TestAnalyzeEndpointRateLimited(t *testing.T) {
	f := newServiceFixture(t)
	f.gen.err = &llm.StatusError{StatusCode: http.StatusTooManyRequests}
	router := newAnalysisRouter(t, f)

	body, ct := uploadBody(t, "nda.txt", "text/plain", []byte("NDA between Alice and Bob."))
	req := guest(httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body))
	req.Header.Set("Content-Type", ct)
	resp := serve(router, req)

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAsyncAnalysisLifecycle(t *testing.T) {
	f := newServiceFixture(t, geminiEnvelope(t, `{"riskLevel":"High","contractType":"MSA"}`))
	f.userID = middleware.GuestPrefix + "test-guest"
	router := newAnalysisRouter(t, f)
	doc := f.upload(t)

	resp := serve(router, guest(httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+doc.ID+"/analyze", nil)))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var started struct {
		AnalysisID string `json:"analysisId"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Status != StatusQueued || started.AnalysisID == "" {
		t.Fatalf("unexpected start body %s", resp.Body.String())
	}

	exportPath := "/api/v1/analyses/" + started.AnalysisID + "/export"
	if resp := serve(router, guest(httptest.NewRequest(http.MethodGet, exportPath, nil))); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", resp.Code)
	}

	if err := f.svc.Process(context.Background(), started.AnalysisID); err != nil {
		t.Fatalf("process: %v", err)
	}

	resp = serve(router, guest(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+started.AnalysisID, nil)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var status struct {
		Status string         `json:"status"`
		Result AnalysisResult `json:"result"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != StatusCompleted || status.Result.RiskLevel != RiskHigh {
		t.Fatalf("unexpected status body %s", resp.Body.String())
	}

	resp = serve(router, guest(httptest.NewRequest(http.MethodGet, exportPath+"?format=xlsx", nil)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 export, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Content-Disposition"); got != `attachment; filename="msa.txt.xlsx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	book, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows("Analysis")
	if err != nil || len(rows) < 2 {
		t.Fatalf("expected rows, got %v (%v)", rows, err)
	}

	resp = serve(router, guest(httptest.NewRequest(http.MethodGet, exportPath+"?format=csv", nil)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", resp.Code)
	}
}

func TestStartAnalysisUnknownDocument(t *testing.T) {
	f := newServiceFixture(t)
	router := newAnalysisRouter(t, f)
	resp := serve(router, guest(httptest.NewRequest(http.MethodPost, "/api/v1/documents/missing/analyze", nil)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListAnalysesRequiresLogin(t *testing.T) {
	f := newServiceFixture(t)
	router := newAnalysisRouter(t, f)
	resp := serve(router, guest(httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil)))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestPollLimiterRejectsRapidPolls(t *testing.T) {
	now := fixedNow
	l := newPollLimiter(time.Second, func() time.Time { return now })
	if !l.Allow("u", "a") {
		t.Fatalf("first poll must pass")
	}
	if l.Allow("u", "a") {
		t.Fatalf("second poll inside the window must fail")
	}
	if !l.Allow("u", "b") {
		t.Fatalf("other analyses are limited separately")
	}
	now = now.Add(time.Second)
	if !l.Allow("u", "a") {
		t.Fatalf("poll after the window must pass")
	}
}

func TestPollLimiterSweepsStaleEntries(t *testing.T) {
	now := fixedNow
	l := newPollLimiter(time.Second, func() time.Time { return now })
	for i := 0; i < pollSweepSize; i++ {
		l.Allow("u", strconv.Itoa(i))
	}
	if got := l.tracked(); got != pollSweepSize {
		t.Fatalf("expected %d tracked polls, got %d", pollSweepSize, got)
	}

	now = now.Add(2 * time.Second)
	if !l.Allow("u", "fresh") {
		t.Fatalf("poll of a new analysis must pass")
	}
	if got := l.tracked(); got != 1 {
		t.Fatalf("expected stale polls to be swept, %d left", got)
	}
}

func TestPollLimiterRetryAfterRoundsUp(t *testing.T) {
	if got := newPollLimiter(300*time.Millisecond, nil).RetryAfterSeconds(); got != 1 {
		t.Fatalf("RetryAfterSeconds = %d, want 1", got)
	}
	if got := newPollLimiter(2*time.Second, nil).RetryAfterSeconds(); got != 2 {
		t.Fatalf("RetryAfterSeconds = %d, want 2", got)
	}
}
