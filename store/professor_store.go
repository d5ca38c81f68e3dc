// Package store implements the buffered, write-coalescing persistence
// layer: short-lock appends into an in-memory pending set, flushed to
// disk once a threshold is crossed or a caller forces it.
package store

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// DefaultFlushThreshold is the number of pending updates that triggers
// an automatic flush.
const DefaultFlushThreshold = 20

// ProfessorStore buffers professor snapshots keyed by address and
// periodically writes Horarios_asignados.json.
type ProfessorStore struct {
	path           string
	flushThreshold int

	mu      sync.Mutex
	pending map[string]model.ProfessorSnapshot
	updates int

	writeMu sync.Mutex
}

// NewProfessorStore constructs a store that writes to path, auto-flushing
// every flushThreshold updates (DefaultFlushThreshold if <= 0).
func NewProfessorStore(path string, flushThreshold int) *ProfessorStore {
	if flushThreshold <= 0 {
		flushThreshold = DefaultFlushThreshold
	}
	return &ProfessorStore{
		path:           path,
		flushThreshold: flushThreshold,
		pending:        make(map[string]model.ProfessorSnapshot),
	}
}

// Upsert records the latest snapshot for a professor. When the pending
// count crosses the flush threshold, a flush is triggered in the
// background; upsert itself never blocks on disk I/O.
func (s *ProfessorStore) Upsert(snapshot model.ProfessorSnapshot) {
	s.mu.Lock()
	s.pending[snapshot.Name] = snapshot
	s.updates++
	shouldFlush := s.updates >= s.flushThreshold
	if shouldFlush {
		s.updates = 0
	}
	metrics.StoreBufferDepth.WithLabelValues("professor").Set(float64(len(s.pending)))
	s.mu.Unlock()

	if shouldFlush {
		go s.ForceFlush()
	}
}

// ForceFlush writes the current pending set to disk, retrying on
// failure with linear backoff (3 attempts, 100ms multiplier). A
// persistent failure is reported but the in-memory state remains
// authoritative.
func (s *ProfessorStore) ForceFlush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	entries := make([]professorReportEntry, 0, len(s.pending))
	for _, snap := range s.pending {
		entries = append(entries, toProfessorReportEntry(snap))
	}
	s.mu.Unlock()

	err := writeJSONWithRetry(s.path, entries)
	if err == nil {
		metrics.StoreFlushes.WithLabelValues("professor").Inc()
	}
	return err
}

// GenerateFinalReport force-flushes the store and writes the final
// Horarios_asignados.json. externalState, if non-nil, overrides the
// in-memory snapshot for the named professors (used when a caller has a
// more current view than what has been upserted).
func (s *ProfessorStore) GenerateFinalReport(externalState map[string]model.ProfessorSnapshot) error {
	s.mu.Lock()
	for name, snap := range externalState {
		s.pending[name] = snap
	}
	s.mu.Unlock()

	return s.ForceFlush()
}

func toProfessorReportEntry(snap model.ProfessorSnapshot) professorReportEntry {
	subjects := make([]subjectReportEntry, 0, len(snap.Assignments))
	for _, a := range snap.Assignments {
		subjects = append(subjects, subjectReportEntry{
			Nombre:           a.SubjectName,
			Sala:             a.Room,
			Bloque:           a.Block,
			Dia:              string(a.Day),
			Satisfaccion:     a.Satisfaction,
			CodigoAsignatura: a.SubjectCode,
			Instance:         a.Instance,
			Actividad:        string(a.Activity),
		})
	}
	return professorReportEntry{
		Nombre:                 snap.Name,
		Asignaturas:            subjects,
		Solicitudes:            snap.SubjectsRequested,
		AsignaturasCompletadas: len(subjects),
	}
}

func writeJSONWithRetry(path string, v interface{}) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		if lastErr = writeFileAtomic(path, payload); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func writeFileAtomic(path string, payload []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
