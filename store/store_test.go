package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentsched/unisched/model"
)

func TestProfessorStoreForceFlushWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Horarios_asignados.json")
	s := NewProfessorStore(path, DefaultFlushThreshold)

	s.Upsert(model.ProfessorSnapshot{
		Name:              "prof-1",
		SubjectsRequested: 2,
		Assignments: []model.FinalAssignment{
			{SubjectName: "Algorithms", SubjectCode: "CS301", Room: "K101",
				Day: model.Monday, Block: 1, Satisfaction: 8, Activity: model.ActivityTheory},
		},
		Completed: true,
	})

	if err := s.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entries []professorReportEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(entries) != 1 || entries[0].Nombre != "prof-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Solicitudes != 2 {
		t.Fatalf("expected the full requested-subject count, got %+v", entries[0])
	}
	if entries[0].AsignaturasCompletadas != 1 {
		t.Fatalf("expected the committed-block count, got %+v", entries[0])
	}
}

func TestProfessorStoreAutoFlushesAtThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Horarios_asignados.json")
	s := NewProfessorStore(path, 2)

	s.Upsert(model.ProfessorSnapshot{Name: "prof-1"})
	s.Upsert(model.ProfessorSnapshot{Name: "prof-2"})

	waitForFile(t, path)
}

func TestRoomStoreForceFlushWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Horarios_salas.json")
	s := NewRoomStore(path, DefaultFlushThreshold)

	grid := map[model.Day][model.MaxBlock + 1]*model.RoomAssignment{
		model.Monday: {},
	}
	slots := grid[model.Monday]
	slots[1] = &model.RoomAssignment{SubjectName: "Algorithms", Satisfaction: 9, Occupancy: 0.8}
	grid[model.Monday] = slots

	s.UpsertRoom(model.RoomSnapshot{Code: "K101", Campus: "K", Capacity: 30, Grid: grid})

	if err := s.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entries []roomReportEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(entries) != 1 || entries[0].Codigo != "K101" || len(entries[0].Asignaturas) != 1 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

// Flushing twice with no intervening upserts must produce the same file
// both times.
func TestForceFlushIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Horarios_asignados.json")
	s := NewProfessorStore(path, DefaultFlushThreshold)

	s.Upsert(model.ProfessorSnapshot{Name: "prof-1", Completed: true})

	if err := s.ForceFlush(); err != nil {
		t.Fatalf("first ForceFlush: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if err := s.ForceFlush(); err != nil {
		t.Fatalf("second ForceFlush: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected identical output from back-to-back flushes:\n%s\nvs\n%s", first, second)
	}
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected auto-flush to create %s", path)
}
