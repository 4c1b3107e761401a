package source

import (
	"context"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"

	"golang.org/x/time/rate"
)

// AdapterConfig is the retry and throttling policy for external calls.
type AdapterConfig interface {
	GetSourceMaxAttempts() int
	GetSourceBackoffBase() time.Duration
	GetSourceRateLimit() float64
}

// Adapter wraps a Transport with retry, exponential backoff and rate
// limiting, and normalizes fetched rows. All engine code talks to the
// external store through it.
type Adapter struct {
	transport   Transport
	norm        *Normalizer
	maxAttempts int
	backoffBase time.Duration
	limiter     *rate.Limiter
	log         *logger.Logger
}

func NewAdapter(transport Transport, norm *Normalizer, cfg AdapterConfig, log *logger.Logger) *Adapter {
	maxAttempts := cfg.GetSourceMaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	backoffBase := cfg.GetSourceBackoffBase()
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	limit := cfg.GetSourceRateLimit()
	if limit <= 0 {
		limit = 1
	}

	return &Adapter{
		transport:   transport,
		norm:        norm,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		limiter:     rate.NewLimiter(rate.Limit(limit), 1),
		log:         log,
	}
}

// FetchAll fetches the full snapshot and normalizes it. Rows failing
// validation are logged and skipped; they never abort the fetch. Returns
// ErrSourceUnavailable once retries are exhausted.
func (a *Adapter) FetchAll(ctx context.Context) ([]RawRow, error) {
	var data []RowData
	err := a.withRetry(ctx, "fetch_all", func() error {
		rows, err := a.transport.FetchAll(ctx)
		if err != nil {
			return err
		}
		data = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]RawRow, 0, len(data))
	for _, row := range data {
		raw, err := a.norm.Normalize(row)
		if err != nil {
			a.log.RowRejected(row.ID, err)
			continue
		}
		results = append(results, raw)
	}
	return results, nil
}

// WriteField writes a single field of a row back to the external store.
func (a *Adapter) WriteField(ctx context.Context, rowID, field, value string) error {
	return a.withRetry(ctx, "write_field", func() error {
		return a.transport.WriteField(ctx, rowID, field, value)
	})
}

func (a *Adapter) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			a.log.Warn("source operation failed",
				"operation", operation, "attempt", attempt, "error", err)
		}

		if attempt < a.maxAttempts {
			delay := a.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	a.log.SourceError(operation, a.maxAttempts, lastErr)
	metrics.SourceErrorsTotal.Inc()
	return apperr.Wrap(apperr.KindUnavailable, "external source unavailable", ErrSourceUnavailable).WithOp(operation)
}
