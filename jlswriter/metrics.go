package jlswriter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jls-format/jls/internal/format"
)

// writerMetrics mirrors the teacher's pervasive per-subsystem
// instrumentation: entirely optional, registered against a
// caller-supplied prometheus.Registerer, and never consulted by the
// writer's own control flow or error handling.
type writerMetrics struct {
	chunksWritten  *prometheus.CounterVec
	bytesWritten   prometheus.Counter
	summaryFlushes *prometheus.CounterVec
}

func newWriterMetrics(reg prometheus.Registerer) *writerMetrics {
	m := &writerMetrics{
		chunksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jls",
			Subsystem: "writer",
			Name:      "chunks_written_total",
			Help:      "Number of chunks written, by chunk tag.",
		}, []string{"tag"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jls",
			Subsystem: "writer",
			Name:      "bytes_written_total",
			Help:      "Number of chunk payload bytes written.",
		}),
		summaryFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jls",
			Subsystem: "writer",
			Name:      "summary_flushes_total",
			Help:      "Number of summary+index chunk pairs flushed, by cascade level.",
		}, []string{"level"}),
	}
	if reg != nil {
		reg.MustRegister(m.chunksWritten, m.bytesWritten, m.summaryFlushes)
	}
	return m
}

func (w *Writer) bumpChunkMetric(tag format.Tag) {
	if w.metrics == nil {
		return
	}
	w.metrics.chunksWritten.WithLabelValues(strconv.Itoa(int(tag))).Inc()
}

func (w *Writer) bumpSummaryFlushMetric(level int) {
	if w.metrics == nil {
		return
	}
	w.metrics.summaryFlushes.WithLabelValues(strconv.Itoa(level)).Inc()
}
