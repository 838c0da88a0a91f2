package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var countBatchesInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "count_batches_in_queue",
	Help: "Number of batches waiting for a worker",
})

var dispatcherSignalCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dispatcher_signal_count",
	Help: "How often the dispatcher has signaled to start worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of active workers",
})

// PagesHandled counts pages by the tier that finished them.
var PagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pages_handled_total",
	Help: "Pages processed, labelled by the handler that owned them",
}, []string{"handler"})

var documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "documents_processed_total",
	Help: "Documents processed, labelled by terminal status",
}, []string{"status"})

var remoteTokens = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "remote_extraction_tokens_total",
	Help: "Tokens spent on the remote extraction tier",
}, []string{"direction"})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func IncrementBatchesInQueue() {
	countBatchesInQueue.Inc()
}

func DecrementBatchesInQueue() {
	countBatchesInQueue.Dec()
}

func StartDispatcherSignalCount() {
	dispatcherSignalCount.Inc()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}
func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

func CaptureDocument(status string, inputTokens, outputTokens int64) {
	documentsTotal.WithLabelValues(status).Inc()
	remoteTokens.WithLabelValues("input").Add(float64(inputTokens))
	remoteTokens.WithLabelValues("output").Add(float64(outputTokens))
}

var batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "batch_duration_seconds",
	Help:    "Total time spent running a batch.",
	Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
}, []string{"service"})

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureBatchMetrics(label string, timeElapsed time.Duration) {
	batchDuration.WithLabelValues(label).Observe(timeElapsed.Seconds())
}
