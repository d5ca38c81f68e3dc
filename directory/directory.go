// Package directory implements the in-process agent registry:
// registration, deregistration, indexed search, and TTL-based eviction.
package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// DefaultTTL is the heartbeat staleness window after which an entry is evicted.
const DefaultTTL = 300 * time.Second

// ErrNotFound is returned by Deregister/Heartbeat for an unknown address.
var ErrNotFound = errors.New("directory: address not registered")

// Directory is the shared service-discovery registry. All methods are
// safe for concurrent use by many agents.
type Directory struct {
	mu    sync.RWMutex
	byAddr  map[string]*model.DirectoryEntry
	byType  map[string]map[string]struct{} // service_type -> set<address>

	ttl time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Directory with the given eviction TTL. A TTL <= 0
// uses DefaultTTL.
func New(ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		byAddr: make(map[string]*model.DirectoryEntry),
		byType: make(map[string]map[string]struct{}),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
}

// Register records address with capabilities, replacing any prior
// registration atomically.
func (d *Directory) Register(address string, capabilities []model.Capability) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for i := range capabilities {
		capabilities[i].UpdatedAt = now
	}

	if existing, ok := d.byAddr[address]; ok {
		d.removeFromTypeIndexLocked(address, existing.Capabilities)
	}

	entry := &model.DirectoryEntry{
		Address:       address,
		Capabilities:  capabilities,
		LastHeartbeat: now,
	}
	d.byAddr[address] = entry
	d.addToTypeIndexLocked(address, capabilities)

	metrics.DirectorySize.Set(float64(len(d.byAddr)))
	return nil
}

// Deregister removes address from the registry.
func (d *Directory) Deregister(address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.byAddr[address]
	if !ok {
		return ErrNotFound
	}
	d.removeFromTypeIndexLocked(address, entry.Capabilities)
	delete(d.byAddr, address)

	metrics.DirectorySize.Set(float64(len(d.byAddr)))
	return nil
}

// Heartbeat refreshes address's last-seen timestamp.
func (d *Directory) Heartbeat(address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.byAddr[address]
	if !ok {
		return ErrNotFound
	}
	entry.LastHeartbeat = time.Now()
	return nil
}

// Search returns a snapshot of entries matching serviceType (if non-empty)
// and propertyFilter (exact-match on every key/value pair, if non-empty).
// The result is a point-in-time copy, never a live view, and never blocks
// on a slow or unavailable agent.
func (d *Directory) Search(serviceType string, propertyFilter map[string]string) []model.DirectoryEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var candidates []*model.DirectoryEntry
	if serviceType != "" {
		addrs, ok := d.byType[serviceType]
		if !ok {
			return nil
		}
		for addr := range addrs {
			if e, ok := d.byAddr[addr]; ok {
				candidates = append(candidates, e)
			}
		}
	} else {
		for _, e := range d.byAddr {
			candidates = append(candidates, e)
		}
	}

	results := make([]model.DirectoryEntry, 0, len(candidates))
	for _, e := range candidates {
		if serviceType != "" && !propertiesMatch(e, serviceType, propertyFilter) {
			continue
		}
		if serviceType == "" && len(propertyFilter) > 0 && !anyCapabilityMatches(e, propertyFilter) {
			continue
		}
		results = append(results, cloneEntry(e))
	}
	return results
}

// Get returns a snapshot of the single entry for address, if present.
func (d *Directory) Get(address string) (model.DirectoryEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.byAddr[address]
	if !ok {
		return model.DirectoryEntry{}, false
	}
	return cloneEntry(e), true
}

// Len returns the number of live entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byAddr)
}

func propertiesMatch(e *model.DirectoryEntry, serviceType string, filter map[string]string) bool {
	for _, cap := range e.Capabilities {
		if cap.ServiceType != serviceType {
			continue
		}
		if capabilityMatchesFilter(cap, filter) {
			return true
		}
	}
	return false
}

func anyCapabilityMatches(e *model.DirectoryEntry, filter map[string]string) bool {
	for _, cap := range e.Capabilities {
		if capabilityMatchesFilter(cap, filter) {
			return true
		}
	}
	return false
}

func capabilityMatchesFilter(cap model.Capability, filter map[string]string) bool {
	for k, v := range filter {
		if cap.Properties[k] != v {
			return false
		}
	}
	return true
}

func cloneEntry(e *model.DirectoryEntry) model.DirectoryEntry {
	capsCopy := make([]model.Capability, len(e.Capabilities))
	copy(capsCopy, e.Capabilities)
	return model.DirectoryEntry{
		Address:       e.Address,
		Capabilities:  capsCopy,
		LastHeartbeat: e.LastHeartbeat,
	}
}

func (d *Directory) addToTypeIndexLocked(address string, capabilities []model.Capability) {
	for _, cap := range capabilities {
		set, ok := d.byType[cap.ServiceType]
		if !ok {
			set = make(map[string]struct{})
			d.byType[cap.ServiceType] = set
		}
		set[address] = struct{}{}
	}
}

func (d *Directory) removeFromTypeIndexLocked(address string, capabilities []model.Capability) {
	for _, cap := range capabilities {
		if set, ok := d.byType[cap.ServiceType]; ok {
			delete(set, address)
			if len(set) == 0 {
				delete(d.byType, cap.ServiceType)
			}
		}
	}
}

// StartEvictionLoop runs the periodic stale-heartbeat sweep in the
// background until ctx is cancelled or Stop is called.
func (d *Directory) StartEvictionLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = d.ttl / 3
		if interval <= 0 {
			interval = time.Second
		}
	}
	go d.evictionLoop(ctx, interval)
}

func (d *Directory) evictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.evictStale()
		}
	}
}

func (d *Directory) evictStale() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for addr, entry := range d.byAddr {
		if now.Sub(entry.LastHeartbeat) > d.ttl {
			d.removeFromTypeIndexLocked(addr, entry.Capabilities)
			delete(d.byAddr, addr)
			metrics.DirectoryEvictions.Inc()
		}
	}
	metrics.DirectorySize.Set(float64(len(d.byAddr)))
}

// Stop halts the eviction loop.
func (d *Directory) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}
