package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 离线同步相关的 Prometheus 指标
var (
	SyncBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_batches_total",
			Help: "Total number of sync batches accepted",
		},
	)

	SyncItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_total",
			Help: "Total number of sync items processed, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	SyncBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_batch_duration_seconds",
			Help:    "Duration of sync batch reconciliation",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncLedgerAppendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_ledger_append_failures_total",
			Help: "Total number of ledger appends that failed inline",
		},
	)

	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limit_rejected_total",
			Help: "Total number of requests rejected by a rate limit rule",
		},
		[]string{"rule"},
	)

	SyncStaleWriteRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_stale_write_retries_total",
			Help: "Total number of update retries caused by concurrent writers",
		},
	)
)

var registerOnce sync.Once

// Register 注册全部指标，可重复调用
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SyncBatchesTotal)
		prometheus.MustRegister(SyncItemsTotal)
		prometheus.MustRegister(SyncBatchDuration)
		prometheus.MustRegister(SyncLedgerAppendFailuresTotal)
		prometheus.MustRegister(SyncStaleWriteRetriesTotal)
		prometheus.MustRegister(RateLimitRejectedTotal)
	})
}
