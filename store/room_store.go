package store

import (
	"sync"

	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// RoomStore buffers room grid snapshots keyed by room code and
// periodically writes Horarios_salas.json. It satisfies room.Store.
type RoomStore struct {
	path           string
	flushThreshold int

	mu      sync.Mutex
	pending map[string]model.RoomSnapshot
	updates int

	writeMu sync.Mutex
}

// NewRoomStore constructs a store that writes to path, auto-flushing
// every flushThreshold updates (DefaultFlushThreshold if <= 0).
func NewRoomStore(path string, flushThreshold int) *RoomStore {
	if flushThreshold <= 0 {
		flushThreshold = DefaultFlushThreshold
	}
	return &RoomStore{
		path:           path,
		flushThreshold: flushThreshold,
		pending:        make(map[string]model.RoomSnapshot),
	}
}

// UpsertRoom records the latest snapshot for a room.
func (s *RoomStore) UpsertRoom(snapshot model.RoomSnapshot) {
	s.mu.Lock()
	s.pending[snapshot.Code] = snapshot
	s.updates++
	shouldFlush := s.updates >= s.flushThreshold
	if shouldFlush {
		s.updates = 0
	}
	metrics.StoreBufferDepth.WithLabelValues("room").Set(float64(len(s.pending)))
	s.mu.Unlock()

	if shouldFlush {
		go s.ForceFlush()
	}
}

// ForceFlush writes the current pending set to disk with the same
// linear-backoff retry policy as ProfessorStore.
func (s *RoomStore) ForceFlush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	entries := make([]roomReportEntry, 0, len(s.pending))
	for _, snap := range s.pending {
		entries = append(entries, toRoomReportEntry(snap))
	}
	s.mu.Unlock()

	err := writeJSONWithRetry(s.path, entries)
	if err == nil {
		metrics.StoreFlushes.WithLabelValues("room").Inc()
	}
	return err
}

// GenerateFinalReport force-flushes the store and writes the final
// Horarios_salas.json, optionally overriding with a more current
// external view of specific rooms.
func (s *RoomStore) GenerateFinalReport(externalState map[string]model.RoomSnapshot) error {
	s.mu.Lock()
	for code, snap := range externalState {
		s.pending[code] = snap
	}
	s.mu.Unlock()

	return s.ForceFlush()
}

func toRoomReportEntry(snap model.RoomSnapshot) roomReportEntry {
	var subjects []roomSubjectReportEntry
	for day, slots := range snap.Grid {
		for block := 1; block <= model.MaxBlock; block++ {
			a := slots[block]
			if a == nil {
				continue
			}
			subjects = append(subjects, roomSubjectReportEntry{
				Nombre:       a.SubjectName,
				Capacidad:    snap.Capacity,
				Bloque:       block,
				Dia:          string(day),
				Satisfaccion: a.Satisfaction,
			})
		}
	}
	return roomReportEntry{
		Codigo:      snap.Code,
		Campus:      snap.Campus,
		Asignaturas: subjects,
	}
}
