package dailylimit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/simaogato/fundsflow-backend/internal/domain"
	"github.com/simaogato/fundsflow-backend/internal/logger"
	"github.com/simaogato/fundsflow-backend/internal/metrics"
)

const (
	// DefaultCacheTTL bounds how long a cached daily total may live
	DefaultCacheTTL = time.Hour

	cacheKeyPrefix = "daily_limit"
	dateLayout     = "2006-01-02"
)

var tracer = otel.Tracer("github.com/simaogato/fundsflow-backend/internal/usecase/dailylimit")

// Usage is a sender's position against the daily limit
type Usage struct {
	SenderID  int64
	Date      string
	Total     decimal.Decimal
	Remaining decimal.Decimal
	Limit     decimal.Decimal
}

// Tracker computes the per-sender, per-day total of completed transfers.
// Totals are read through the cache and recomputed from the ledger on a
// miss. Callers must Invalidate after every committed transfer.
//
// Only a caller holding the sender's account lock may fill the cache:
// the lock keeps other transfers by that sender from committing between
// the ledger read and the write. Lock-free readers use Usage, which never
// writes the cache.
type Tracker struct {
	Ledger   domain.LedgerStore
	Cache    domain.Cache
	TTL      time.Duration
	Location *time.Location
	Now      func() time.Time
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// NewTracker creates a Tracker with a one hour TTL, the server's local
// day boundaries and the system clock. cache may be nil.
func NewTracker(ledger domain.LedgerStore, cache domain.Cache) *Tracker {
	return &Tracker{
		Ledger:   ledger,
		Cache:    cache,
		TTL:      DefaultCacheTTL,
		Location: time.Local,
		Now:      time.Now,
		Logger:   zap.NewNop(),
	}
}

// DayBounds returns [start, end) of the calendar day containing t
func (t *Tracker) DayBounds(at time.Time) (time.Time, time.Time) {
	local := at.In(t.Zone())
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.Zone())
	return start, start.AddDate(0, 0, 1)
}

// CacheKey returns daily_limit:{senderID}:{YYYY-MM-DD}
func (t *Tracker) CacheKey(senderID int64, day time.Time) string {
	return fmt.Sprintf("%s:%d:%s", cacheKeyPrefix, senderID, day.In(t.Zone()).Format(dateLayout))
}

// DailyTotal returns the sum of completed transfers sent by senderID on
// the calendar day containing day, caching a recomputed total.
// The caller must hold senderID's account lock. Cache failures fall back
// to the ledger.
func (t *Tracker) DailyTotal(ctx context.Context, senderID int64, day time.Time) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "dailylimit.DailyTotal")
	defer span.End()
	return t.total(ctx, span, senderID, day, true)
}

func (t *Tracker) total(ctx context.Context, span trace.Span, senderID int64, day time.Time, fill bool) (decimal.Decimal, error) {
	key := t.CacheKey(senderID, day)
	log := logger.WithTrace(ctx, t.logger()).With(zap.String("cache_key", key))

	if t.Cache != nil {
		raw, ok, err := t.Cache.Get(ctx, key)
		switch {
		case err != nil:
			t.Metrics.CacheError("get")
			log.Warn("Daily total cache read failed, using ledger", zap.Error(err))
		case ok:
			total, perr := decimal.NewFromString(raw)
			if perr == nil {
				t.Metrics.CacheHit()
				span.SetAttributes(attribute.Bool("cache_hit", true))
				return total, nil
			}
			log.Warn("Discarding unparseable cached daily total", zap.String("value", raw))
		}
	}

	t.Metrics.CacheMiss()
	span.SetAttributes(attribute.Bool("cache_hit", false))

	start, end := t.DayBounds(day)
	total, err := t.Ledger.SumCompletedTransfersForDay(ctx, senderID, start, end)
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, fmt.Errorf("failed to compute daily total: %w", err)
	}

	if fill && t.Cache != nil {
		if err := t.Cache.Put(ctx, key, total.StringFixed(2), t.ttl()); err != nil {
			t.Metrics.CacheError("put")
			log.Warn("Daily total cache write failed", zap.Error(err))
		}
	}
	return total, nil
}

// Invalidate drops the cached total for senderID on day.
// An error means a stale total may still be cached.
func (t *Tracker) Invalidate(ctx context.Context, senderID int64, day time.Time) error {
	if t.Cache == nil {
		return nil
	}
	if err := t.Cache.Forget(ctx, t.CacheKey(senderID, day)); err != nil {
		t.Metrics.CacheError("forget")
		return fmt.Errorf("failed to invalidate daily total: %w", err)
	}
	return nil
}

// Check fails with ErrDailyLimitExceeded when total + amount is above
// DailyLimit. Reaching the limit exactly is allowed.
func Check(total decimal.Decimal, amount domain.Money) error {
	next := total.Add(amount.Decimal())
	if next.GreaterThan(domain.DailyLimit) {
		return fmt.Errorf("%w: %s already sent today, %s requested, limit %s",
			domain.ErrDailyLimitExceeded, total.StringFixed(2), amount, domain.DailyLimit.StringFixed(2))
	}
	return nil
}

// Usage reports how much senderID has sent today and what remains.
// It reads the cache but never fills it, so it is safe without a lock.
func (t *Tracker) Usage(ctx context.Context, senderID int64) (Usage, error) {
	ctx, span := tracer.Start(ctx, "dailylimit.Usage")
	defer span.End()

	now := t.now()
	total, err := t.total(ctx, span, senderID, now, false)
	if err != nil {
		return Usage{}, err
	}
	remaining := domain.DailyLimit.Sub(total)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Usage{
		SenderID:  senderID,
		Date:      now.In(t.Zone()).Format(dateLayout),
		Total:     total,
		Remaining: remaining,
		Limit:     domain.DailyLimit,
	}, nil
}

// Zone returns the location that defines day boundaries
func (t *Tracker) Zone() *time.Location {
	if t.Location == nil {
		return time.Local
	}
	return t.Location
}

func (t *Tracker) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

func (t *Tracker) ttl() time.Duration {
	if t.TTL <= 0 {
		return DefaultCacheTTL
	}
	return t.TTL
}

func (t *Tracker) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
