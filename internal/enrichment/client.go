// Package enrichment looks up cost and demand data for subjects through a
// rate-limited, circuit-broken, retried client.
package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"pricewatch/internal/config"
	"pricewatch/internal/enrichment/provider"
	"pricewatch/internal/logger"
	"pricewatch/pkg/circuitbreaker"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
	"pricewatch/pkg/ratelimit"
	"pricewatch/pkg/retry"
	"pricewatch/pkg/tracing"
)

// Reasons a lookup produced no data.
const (
	ReasonNotFound         = "not_found"
	ReasonCircuitOpen      = "circuit_open"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonTimeout          = "timeout"
	ReasonCanceled         = "canceled"
	ReasonError            = "error"
)

// Result is the outcome of one enrichment lookup. Degraded means the data
// is absent and margin-aware classification is unavailable.
type Result struct {
	Data     *models.EnrichmentData
	Degraded bool
	Reason   string
}

// Enricher never fails: problems are reported as a degraded Result.
type Enricher interface {
	Enrich(ctx context.Context, subjectKey string) Result
}

type Client struct {
	provider  provider.Provider
	resilient *ResilientClient
	logger    logger.Logger
}

func NewClient(p provider.Provider, cfg config.EnrichmentConfig, log logger.Logger) *Client {
	limiter := ratelimit.New(ratelimit.Config{
		Name:           "enrichment",
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		SafetyFactor:   cfg.RateLimit.SafetyFactor,
		JitterFraction: cfg.RateLimit.JitterFraction,
	})

	cbConfig := circuitbreaker.DefaultConfig("enrichment")
	if cfg.CircuitBreaker.Threshold > 0 {
		cbConfig.Threshold = cfg.CircuitBreaker.Threshold
	}
	if cfg.CircuitBreaker.ResetTimeout > 0 {
		cbConfig.ResetTimeout = cfg.CircuitBreaker.ResetTimeout
	}
	cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warnw("Enrichment circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	}

	policy := retry.Policy{
		Name:            "enrichment",
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.Base,
		MaxInterval:     cfg.Retry.Cap,
		Multiplier:      2.0,
		Jitter:          cfg.Retry.Jitter,
		OnRetry: func(attempt int, err error, next time.Duration) {
			log.Debugw("Retrying enrichment lookup",
				"attempt", attempt,
				"next_delay", next,
				"error", err,
			)
		},
	}

	return &Client{
		provider:  p,
		resilient: NewResilientClient(limiter, circuitbreaker.NewWrapper(cbConfig), policy),
		logger:    log,
	}
}

// NewClientWith assembles a client from prebuilt parts.
func NewClientWith(p provider.Provider, resilient *ResilientClient, log logger.Logger) *Client {
	return &Client{provider: p, resilient: resilient, logger: log}
}

// Lookup fetches data for subjectKey. A capacity hint on the response
// retunes the limiter.
func (c *Client) Lookup(ctx context.Context, subjectKey string) (*models.EnrichmentData, error) {
	ctx, span := tracing.StartSpan(ctx, "enrichment.lookup")
	defer span.End()
	span.SetAttributes(
		attribute.String("subject_key", subjectKey),
		attribute.String("provider", c.provider.Name()),
	)

	data, err := Do(ctx, c.resilient, func(ctx context.Context) (*models.EnrichmentData, error) {
		return c.provider.Fetch(ctx, subjectKey)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if data.RemainingQuota != nil {
		c.resilient.Limiter().Observe(*data.RemainingQuota)
	}
	return data, nil
}

// Enrich is Lookup with failures folded into a degraded Result. When ctx
// has a deadline, the lookup gets half of the remaining time so a slow
// upstream degrades the classification instead of timing out the message.
func (c *Client) Enrich(ctx context.Context, subjectKey string) Result {
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Until(deadline)/2)
		defer cancel()
	}

	data, err := c.Lookup(ctx, subjectKey)
	if err == nil {
		return Result{Data: data}
	}

	reason := degradedReason(err)
	metrics.EnrichmentDegradedTotal.WithLabelValues(reason).Inc()
	c.logger.InfowCtx(ctx, "Enrichment unavailable, classifying degraded",
		"reason", reason,
		"error", err,
	)
	return Result{Degraded: true, Reason: reason}
}

func degradedReason(err error) string {
	var exhausted *retry.RetriesExhaustedError
	switch {
	case apperrors.IsNotFound(err):
		return ReasonNotFound
	case circuitbreaker.IsCircuitOpen(err):
		return ReasonCircuitOpen
	case errors.As(err, &exhausted):
		return ReasonRetriesExhausted
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, apperrors.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	default:
		return ReasonError
	}
}
