package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/socialgraph/core"
)

// VersionRegistry is an in-memory social.VersionRegistry: four streams
// per owner, last-writer-wins on wall-clock, as specified in §4.5.
type VersionRegistry struct {
	mu   sync.Mutex
	rows map[versionKey]time.Time
}

type versionKey struct {
	owner  social.UserID
	stream social.VersionStream
}

func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{rows: make(map[versionKey]time.Time)}
}

func (v *VersionRegistry) Bump(ctx context.Context, owner social.UserID, stream social.VersionStream, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := versionKey{owner, stream}
	if existing, ok := v.rows[key]; ok && existing.After(at) {
		return nil // last-writer-wins: a newer timestamp already recorded
	}
	v.rows[key] = at
	return nil
}

func (v *VersionRegistry) Get(ctx context.Context, owner social.UserID, stream social.VersionStream) (time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rows[versionKey{owner, stream}], nil
}

// IDGenerator is a trivial in-process 64-bit ID source. It is namespaced
// per serviceType, each with its own monotonic counter seeded from wall
// time, which is sufficient for tests and for single-process deployments
// that don't need the external ID generator named in §6.
type IDGenerator struct {
	mu      sync.Mutex
	offsets map[string]*int64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{offsets: make(map[string]*int64)}
}

func (g *IDGenerator) NextLargeGapID(ctx context.Context, serviceType string) (int64, error) {
	g.mu.Lock()
	counter, ok := g.offsets[serviceType]
	if !ok {
		base := time.Now().UnixNano()
		counter = &base
		g.offsets[serviceType] = counter
	}
	g.mu.Unlock()
	return atomic.AddInt64(counter, 1000), nil // large gap between successive IDs
}
