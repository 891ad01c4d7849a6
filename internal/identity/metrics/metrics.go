package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registry's Prometheus metrics.
type Metrics struct {
	RecordsCreated   prometheus.Counter
	RecordsUpdated   prometheus.Counter
	UpdateConflicts  prometheus.Counter
	MergePasses      prometheus.Histogram
	MergeResiduals   prometheus.Counter
	ArtifactsStored  *prometheus.CounterVec
	ReissueRequests  *prometheus.CounterVec
	RequestDurations *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		RecordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idregistry_records_created_total",
			Help: "Total number of identity records created",
		}),
		RecordsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idregistry_records_updated_total",
			Help: "Total number of identity record updates committed",
		}),
		UpdateConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idregistry_update_conflicts_total",
			Help: "Total number of updates rejected by the record version check",
		}),
		MergePasses: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idregistry_merge_passes",
			Help:    "Reconciliation passes needed for a payload merge to converge",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		MergeResiduals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idregistry_merge_residuals_total",
			Help: "Total number of merges that hit the pass bound with a residual diff",
		}),
		ArtifactsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_artifacts_stored_total",
			Help: "Total number of artifacts ingested, by kind",
		}, []string{"kind"}),
		ReissueRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_reissue_requests_total",
			Help: "Total number of credential reissue transitions applied, by status",
		}, []string{"status"}),
		RequestDurations: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idregistry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.RequestDurations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementArtifacts(kind string, n int) {
	m.ArtifactsStored.WithLabelValues(kind).Add(float64(n))
}
