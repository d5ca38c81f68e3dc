// Package quickreject implements a cached pre-filter: a pure function
// over (subject, room) that rejects obviously unsuitable pairs before
// any CFP is sent. The cache is unbounded by design; subject×room
// cardinality stays small in practice, so there is no eviction.
package quickreject

import (
	"math"
	"sync"

	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// RoomInfo is the subset of room state the filter needs.
type RoomInfo struct {
	Code     string
	Campus   string
	Capacity int
}

type cacheKey struct {
	subjectCode string
	roomCode    string
}

// Filter is the cached Quick-Reject pre-filter.
type Filter struct {
	mu    sync.RWMutex
	cache map[cacheKey]bool // true = allow, false = reject
}

// New constructs an empty Filter.
func New() *Filter {
	return &Filter{cache: make(map[cacheKey]bool)}
}

// Allow reports whether (subject, room) survives the quick-reject checks.
// A full constraint-evaluator pass still decides final validity; this
// filter only rules out pairs that could never work.
func (f *Filter) Allow(subject model.Subject, room RoomInfo) bool {
	key := cacheKey{subjectCode: subject.Code, roomCode: room.Code}

	f.mu.RLock()
	if allowed, ok := f.cache[key]; ok {
		f.mu.RUnlock()
		metrics.QuickRejectCacheHits.Inc()
		return allowed
	}
	f.mu.RUnlock()

	allowed := evaluate(subject, room)

	f.mu.Lock()
	f.cache[key] = allowed
	f.mu.Unlock()

	return allowed
}

func evaluate(subject model.Subject, room RoomInfo) bool {
	if subject.Campus != room.Campus {
		return false
	}

	needsMeetingRoom := subject.NeedsMeetingRoom()
	roomIsMeetingRoom := room.Capacity < model.MeetingRoomThreshold
	if needsMeetingRoom != roomIsMeetingRoom {
		return false
	}

	if needsMeetingRoom {
		minCapacity := int(math.Ceil(float64(subject.Enrollment) * 0.8))
		return room.Capacity >= minCapacity
	}
	return room.Capacity >= subject.Enrollment
}

// Len reports the number of cached (subject, room) decisions.
func (f *Filter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}
