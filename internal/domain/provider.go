package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"formulaevo/internal/model"
)

var ErrDomainNotFound = errors.New("domain not found")

// Provider supplies finite, stable samples of named entities per domain.
type Provider interface {
	Load(ctx context.Context, domainID string, sampleLimit int) ([]model.DomainEntity, error)
}

// MemoryProvider serves domains held in process.
type MemoryProvider struct {
	mu      sync.RWMutex
	domains map[string][]model.DomainEntity
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{domains: make(map[string][]model.DomainEntity)}
}

// Put replaces the entities of a domain. DomainID is stamped on each entity.
func (p *MemoryProvider) Put(domainID string, entities []model.DomainEntity) {
	copied := make([]model.DomainEntity, len(entities))
	for i, e := range entities {
		e.DomainID = domainID
		e.Features = e.Features.Clone()
		copied[i] = e
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domains[domainID] = copied
}

func (p *MemoryProvider) Remove(domainID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.domains, domainID)
}

func (p *MemoryProvider) Domains() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.domains))
	for name := range p.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *MemoryProvider) Load(ctx context.Context, domainID string, sampleLimit int) ([]model.DomainEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	entities, ok := p.domains[domainID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, domainID)
	}
	return head(entities, sampleLimit), nil
}

func head(entities []model.DomainEntity, limit int) []model.DomainEntity {
	n := len(entities)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.DomainEntity, n)
	for i := 0; i < n; i++ {
		e := entities[i]
		e.Features = e.Features.Clone()
		out[i] = e
	}
	return out
}
