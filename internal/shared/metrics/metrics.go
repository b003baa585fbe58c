package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysisStartedTotal   atomic.Uint64
	analysisCompletedTotal atomic.Uint64
	analysisFailedTotal    atomic.Uint64
	analysisJobsReceived   atomic.Uint64
	analysisJobsCompleted  atomic.Uint64
	analysisJobsFailed     atomic.Uint64
	analysisJobsDropped    atomic.Uint64
	llmRetriesTotal        atomic.Uint64
	llmRegenerationsTotal  atomic.Uint64
	httpPanicsTotal        atomic.Uint64

	failuresByKind = newLabeledCounter()

	analysisDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() {
	analysisStartedTotal.Add(1)
}

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() {
	analysisCompletedTotal.Add(1)
}

// IncAnalysisFailed increments the failed counter and the per-kind breakdown.
func IncAnalysisFailed(kind string) {
	analysisFailedTotal.Add(1)
	if kind == "" {
		kind = "UNKNOWN"
	}
	failuresByKind.Inc(kind)
}

// IncAnalysisJobsReceived counts queue messages picked up by the worker.
func IncAnalysisJobsReceived() {
	analysisJobsReceived.Add(1)
}

// IncAnalysisJobsCompleted counts queue messages processed and deleted.
func IncAnalysisJobsCompleted() {
	analysisJobsCompleted.Add(1)
}

// IncAnalysisJobsFailed counts queue messages left for redelivery.
func IncAnalysisJobsFailed() {
	analysisJobsFailed.Add(1)
}

// IncAnalysisJobsDeletedUnrecoverable counts malformed messages dropped from the queue.
func IncAnalysisJobsDeletedUnrecoverable() {
	analysisJobsDropped.Add(1)
}

// IncLLMRetries counts backoff retries issued against the generation backend.
func IncLLMRetries() {
	llmRetriesTotal.Add(1)
}

// IncLLMRegenerations counts extra generations issued after a parse failure.
func IncLLMRegenerations() {
	llmRegenerationsTotal.Add(1)
}

// IncHTTPPanics counts handler panics turned into 500 responses.
func IncHTTPPanics() {
	httpPanicsTotal.Add(1)
}

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_started_total", "Total analyses started", analysisStartedTotal.Load())
	writeCounter(&buf, "analysis_completed_total", "Total analyses completed", analysisCompletedTotal.Load())
	writeCounter(&buf, "analysis_failed_total", "Total analyses failed", analysisFailedTotal.Load())
	writeLabeled(&buf, "analysis_failures_by_kind_total", "Failed analyses by error kind", "kind", failuresByKind.Snapshot())
	writeCounter(&buf, "analysis_jobs_received_total", "Queued analysis jobs received by workers", analysisJobsReceived.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Queued analysis jobs completed by workers", analysisJobsCompleted.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Queued analysis jobs that failed and await redelivery", analysisJobsFailed.Load())
	writeCounter(&buf, "analysis_jobs_deleted_unrecoverable_total", "Malformed queue messages deleted", analysisJobsDropped.Load())
	writeCounter(&buf, "llm_retries_total", "Generation retries after rate limiting", llmRetriesTotal.Load())
	writeCounter(&buf, "llm_regenerations_total", "Extra generations after unparseable output", llmRegenerationsTotal.Load())
	writeCounter(&buf, "http_panics_total", "Handler panics recovered", httpPanicsTotal.Load())
	writeHistogram(&buf, "analysis_duration_ms", "Analysis duration in milliseconds", analysisDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: map[string]uint64{}}
}

func (l *labeledCounter) Inc(label string) {
	l.mu.Lock()
	l.values[label]++
	l.mu.Unlock()
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts value in the first bucket whose bound it does not exceed.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeled(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
