package provider

import (
	"context"
	"sync"

	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

// StaticProvider serves enrichment data from memory. Each subject can be
// scripted with errors returned before its data, which lets tests drive
// throttling and outage sequences.
type StaticProvider struct {
	mu     sync.Mutex
	data   map[string]models.EnrichmentData
	errs   map[string][]error
	always error
	calls  int
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		data: make(map[string]models.EnrichmentData),
		errs: make(map[string][]error),
	}
}

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) Set(subjectKey string, data models.EnrichmentData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data.SubjectKey = subjectKey
	p.data[subjectKey] = data
}

// FailNext queues errs to be returned, in order, by the next fetches of subjectKey.
func (p *StaticProvider) FailNext(subjectKey string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[subjectKey] = append(p.errs[subjectKey], errs...)
}

// FailAlways makes every fetch return err until called with nil.
func (p *StaticProvider) FailAlways(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.always = err
}

func (p *StaticProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *StaticProvider) Fetch(ctx context.Context, subjectKey string) (*models.EnrichmentData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if p.always != nil {
		return nil, p.always
	}
	if queued := p.errs[subjectKey]; len(queued) > 0 {
		p.errs[subjectKey] = queued[1:]
		return nil, queued[0]
	}
	data, ok := p.data[subjectKey]
	if !ok {
		return nil, apperrors.ErrNotFound.WithDetail("subject_key", subjectKey)
	}
	return &data, nil
}
