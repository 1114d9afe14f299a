package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pricewatch/internal/constants"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

// RateLimitHeader carries the upstream's current sustained rate in requests
// per second.
const RateLimitHeader = "x-amzn-RateLimit-Limit"

type APIProvider struct {
	client  *http.Client
	urlTmpl string
}

// NewAPIProvider calls urlTmpl with {subject_key} replaced by the escaped key.
func NewAPIProvider(urlTmpl string, timeout time.Duration) *APIProvider {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &APIProvider{
		client: &http.Client{
			Timeout: timeout,
		},
		urlTmpl: urlTmpl,
	}
}

func (p *APIProvider) Name() string {
	return constants.ProviderNameAPI
}

func (p *APIProvider) Fetch(ctx context.Context, subjectKey string) (*models.EnrichmentData, error) {
	start := time.Now()
	data, err := p.fetch(ctx, subjectKey)
	metrics.ObserveEnrichmentProviderDuration(p.Name(), time.Since(start))
	metrics.IncEnrichmentProviderRequest(p.Name(), statusLabel(err))
	return data, err
}

func (p *APIProvider) fetch(ctx context.Context, subjectKey string) (*models.EnrichmentData, error) {
	target := strings.ReplaceAll(p.urlTmpl, "{subject_key}", url.PathEscape(subjectKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// transport failures and client timeouts are worth another attempt
		return nil, apperrors.ErrTimeout.WithCause(fmt.Errorf("api request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, apperrors.FromHTTPStatus(resp.StatusCode).
			WithDetail("subject_key", subjectKey)
	}

	var data models.EnrichmentData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, apperrors.ErrServerError.WithCause(fmt.Errorf("failed to decode response: %w", err))
	}
	data.SubjectKey = subjectKey

	if v := resp.Header.Get(RateLimitHeader); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			data.RemainingQuota = &rps
		}
	}

	return &data, nil
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
