package cache

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"formulaevo/internal/model"
)

// EntityKey identifies one provider load.
type EntityKey struct {
	DomainID    string
	SampleLimit int
}

// EncodingKey identifies the encodings of one domain sample under one
// formula and parameter vector.
type EncodingKey struct {
	DomainID      string
	FormulaType   model.FormulaType
	ParameterHash uint64
	SampleLimit   int
}

// Encoded is the cached transform output for one domain sample. Encodings
// and Outcomes are index-aligned; Dropped counts entities whose input was
// rejected by the engine.
type Encoded struct {
	Encodings []model.VisualEncoding
	Outcomes  []float64
	Dropped   int
}

type Stats struct {
	EntityHits     uint64
	EntityMisses   uint64
	EncodingHits   uint64
	EncodingMisses uint64
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		EntityHits:     s.EntityHits + o.EntityHits,
		EntityMisses:   s.EntityMisses + o.EntityMisses,
		EncodingHits:   s.EncodingHits + o.EncodingHits,
		EncodingMisses: s.EncodingMisses + o.EncodingMisses,
	}
}

// Observer receives hit/miss notifications, e.g. for metrics export.
type Observer interface {
	CacheLookup(kind string, hit bool)
}

// Cache memoizes provider loads and transform results for the lifetime of
// the instance, which callers scope to one unit of work so provider changes
// are seen by the next one. Values are treated as immutable once stored;
// concurrent computation of the same key is tolerated and the last write wins.
type Cache struct {
	mu        sync.RWMutex
	entities  map[EntityKey][]model.DomainEntity
	encodings map[EncodingKey]Encoded
	maxItems  int
	observer  Observer

	entityHits     atomic.Uint64
	entityMisses   atomic.Uint64
	encodingHits   atomic.Uint64
	encodingMisses atomic.Uint64
}

// DefaultMaxEncodings is a reasonable encoding bound for one evolution run.
// Each entry holds a full domain sample of encodings.
const DefaultMaxEncodings = 512

type Option func(*Cache)

// WithMaxEncodings bounds the encoding map; once full, new keys are not
// stored. Zero means unbounded.
func WithMaxEncodings(n int) Option {
	return func(c *Cache) { c.maxItems = n }
}

func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entities:  make(map[EntityKey][]model.DomainEntity),
		encodings: make(map[EncodingKey]Encoded),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Entities(key EntityKey) ([]model.DomainEntity, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entities, ok := c.entities[key]
	c.mu.RUnlock()
	c.record("entities", ok, &c.entityHits, &c.entityMisses)
	return entities, ok
}

func (c *Cache) PutEntities(key EntityKey, entities []model.DomainEntity) {
	if c == nil {
		return
	}
	copied := make([]model.DomainEntity, len(entities))
	for i, e := range entities {
		e.Features = e.Features.Clone()
		copied[i] = e
	}
	c.mu.Lock()
	c.entities[key] = copied
	c.mu.Unlock()
}

func (c *Cache) Encodings(key EncodingKey) (Encoded, bool) {
	if c == nil {
		return Encoded{}, false
	}
	c.mu.RLock()
	encoded, ok := c.encodings[key]
	c.mu.RUnlock()
	c.record("encodings", ok, &c.encodingHits, &c.encodingMisses)
	return encoded, ok
}

func (c *Cache) PutEncodings(key EncodingKey, encoded Encoded) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.encodings[key]; !exists && c.maxItems > 0 && len(c.encodings) >= c.maxItems {
		return
	}
	c.encodings[key] = encoded
}

func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		EntityHits:     c.entityHits.Load(),
		EntityMisses:   c.entityMisses.Load(),
		EncodingHits:   c.encodingHits.Load(),
		EncodingMisses: c.encodingMisses.Load(),
	}
}

func (c *Cache) record(kind string, hit bool, hits, misses *atomic.Uint64) {
	if hit {
		hits.Add(1)
	} else {
		misses.Add(1)
	}
	if c.observer != nil {
		c.observer.CacheLookup(kind, hit)
	}
}

// ParameterHash hashes the IEEE-754 bits of params. Vectors that differ in
// any bit hash differently with overwhelming probability.
func ParameterHash(params []float64) uint64 {
	buf := make([]byte, 8*len(params))
	for i, v := range params {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return xxhash.Sum64(buf)
}
