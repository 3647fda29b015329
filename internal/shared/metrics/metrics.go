package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	uploadsAcceptedTotal  atomic.Uint64
	uploadsRejectedTotal  atomic.Uint64
	uploadsDedupedTotal   atomic.Uint64
	enqueueFailedTotal    atomic.Uint64
	jobsReceivedTotal     atomic.Uint64
	jobsDroppedTotal      atomic.Uint64
	jobsRequeuedTotal     atomic.Uint64
	extractionProcessed   atomic.Uint64
	extractionFailed      atomic.Uint64
	extractionSkipped     atomic.Uint64
	extractionConflicts   atomic.Uint64
	extractionInfraErrors atomic.Uint64

	extractionDuration = newHistogram([]float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncUploadsAccepted increments the accepted uploads counter.
func IncUploadsAccepted() { uploadsAcceptedTotal.Add(1) }

// IncUploadsRejected increments the rejected uploads counter.
func IncUploadsRejected() { uploadsRejectedTotal.Add(1) }

// IncUploadsDeduped increments the counter of uploads answered with an existing record.
func IncUploadsDeduped() { uploadsDedupedTotal.Add(1) }

// IncEnqueueFailed increments the counter of uploads whose job could not be enqueued.
func IncEnqueueFailed() { enqueueFailedTotal.Add(1) }

// IncJobsReceived increments the received jobs counter.
func IncJobsReceived() { jobsReceivedTotal.Add(1) }

// IncJobsDropped increments the counter of undecodable jobs acked without processing.
func IncJobsDropped() { jobsDroppedTotal.Add(1) }

// IncJobsRequeued increments the counter of jobs re-enqueued by the reconciler.
func IncJobsRequeued() { jobsRequeuedTotal.Add(1) }

// IncExtractionProcessed increments the processed counter.
func IncExtractionProcessed() { extractionProcessed.Add(1) }

// IncExtractionFailed increments the failed counter.
func IncExtractionFailed() { extractionFailed.Add(1) }

// IncExtractionSkipped increments the counter of jobs whose record was missing or terminal.
func IncExtractionSkipped() { extractionSkipped.Add(1) }

// IncExtractionConflict increments the counter of lost compare-and-swap writes.
func IncExtractionConflict() { extractionConflicts.Add(1) }

// IncExtractionInfraError increments the counter of jobs left for redelivery.
func IncExtractionInfraError() { extractionInfraErrors.Add(1) }

// ObserveExtractionDurationMs records an extraction duration in milliseconds.
func ObserveExtractionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	extractionDuration.Observe(value)
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
	writeCounter(&buf, "uploads_accepted_total", "Total uploads accepted", uploadsAcceptedTotal.Load())
	writeCounter(&buf, "uploads_rejected_total", "Total uploads rejected by validation", uploadsRejectedTotal.Load())
	writeCounter(&buf, "uploads_deduped_total", "Total uploads answered with an existing record", uploadsDedupedTotal.Load())
	writeCounter(&buf, "enqueue_failed_total", "Total extraction jobs that could not be enqueued", enqueueFailedTotal.Load())
	writeCounter(&buf, "jobs_received_total", "Total extraction jobs received by workers", jobsReceivedTotal.Load())
	writeCounter(&buf, "jobs_dropped_total", "Total undecodable jobs dropped", jobsDroppedTotal.Load())
	writeCounter(&buf, "jobs_requeued_total", "Total stale pending documents re-enqueued", jobsRequeuedTotal.Load())
	writeCounter(&buf, "extraction_processed_total", "Total documents processed", extractionProcessed.Load())
	writeCounter(&buf, "extraction_failed_total", "Total documents failed", extractionFailed.Load())
	writeCounter(&buf, "extraction_skipped_total", "Total jobs skipped for missing or terminal documents", extractionSkipped.Load())
	writeCounter(&buf, "extraction_conflict_total", "Total terminal writes lost to a concurrent writer", extractionConflicts.Load())
	writeCounter(&buf, "extraction_infra_error_total", "Total jobs left for redelivery", extractionInfraErrors.Load())
	writeHistogram(&buf, "extraction_duration_ms", "Extraction duration in milliseconds", extractionDuration.Snapshot())
	return buf.String()
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

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	// Observe already counts each value into every bucket it fits, so counts are cumulative.
	for i, bound := range snap.buckets {
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), snap.counts[i])
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
