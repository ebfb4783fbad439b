package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

// Transfer outcomes used as the "outcome" label
const (
	OutcomeCompleted          = "completed"
	OutcomeInvalid            = "invalid"
	OutcomeAccountNotFound    = "account_not_found"
	OutcomeInsufficientFunds  = "insufficient_funds"
	OutcomeDailyLimitExceeded = "daily_limit_exceeded"
	OutcomeDuplicate          = "duplicate"
	OutcomeBusy               = "busy"
	OutcomeError              = "error"
)

// Metrics holds the transfer engine collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	TransfersTotal        *prometheus.CounterVec
	TransferDuration      prometheus.Histogram
	DailyLimitCacheHits   prometheus.Counter
	DailyLimitCacheMisses prometheus.Counter
	CacheErrors           *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fundsflow_transfers_total",
			Help: "Total number of transfer attempts by outcome",
		}, []string{"outcome"}),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundsflow_transfer_duration_seconds",
			Help:    "Time spent executing a transfer, locks included",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		DailyLimitCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "fundsflow_daily_limit_cache_hits_total",
			Help: "Daily total lookups served from cache",
		}),
		DailyLimitCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "fundsflow_daily_limit_cache_misses_total",
			Help: "Daily total lookups recomputed from the ledger",
		}),
		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fundsflow_cache_errors_total",
			Help: "Cache operations that failed, by operation",
		}, []string{"op"}),
	}
}

// ObserveTransfer records one transfer attempt
func (m *Metrics) ObserveTransfer(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(Outcome(err)).Inc()
	m.TransferDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.DailyLimitCacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.DailyLimitCacheMisses.Inc()
	}
}

func (m *Metrics) CacheError(op string) {
	if m != nil {
		m.CacheErrors.WithLabelValues(op).Inc()
	}
}

// Outcome maps a transfer result to its label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, domain.ErrAccountNotFound):
		return OutcomeAccountNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return OutcomeDailyLimitExceeded
	case errors.Is(err, domain.ErrDuplicateTransaction):
		return OutcomeDuplicate
	case errors.Is(err, domain.ErrBusy):
		return OutcomeBusy
	case domain.IsValidation(err):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
