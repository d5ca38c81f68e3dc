// Command demo wires up a couple of professors and rooms in-process
// and runs one negotiation round, to exercise the negotiation core end
// to end. It deliberately has no flags or JSON loading -- those stay
// out of scope per the negotiation protocol's own boundaries; this is
// a wiring example, not a CLI.
package main

import (
	"context"
	"log"
	"time"

	"github.com/agentsched/unisched/auditstore"
	"github.com/agentsched/unisched/bus"
	"github.com/agentsched/unisched/dashboard"
	"github.com/agentsched/unisched/directory"
	"github.com/agentsched/unisched/model"
	"github.com/agentsched/unisched/professor"
	"github.com/agentsched/unisched/quickreject"
	"github.com/agentsched/unisched/room"
	"github.com/agentsched/unisched/store"
	"github.com/agentsched/unisched/supervisor"
	"github.com/agentsched/unisched/turn"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	memBus := bus.NewInMemoryBus()
	dir := directory.New(directory.DefaultTTL)
	dir.StartEvictionLoop(ctx, 0)
	defer dir.Stop()

	profStore := store.NewProfessorStore("Horarios_asignados.json", store.DefaultFlushThreshold)
	roomStore := store.NewRoomStore("Horarios_salas.json", store.DefaultFlushThreshold)

	roomLimiter := quickreject.NewCFPLimiter(20, 10)

	rooms := []struct {
		code     string
		campus   string
		capacity int
		turno    int
	}{
		{"K101", "K", 30, 1},
		{"K102", "K", 35, 1},
		{"P201", "P", 25, 2},
	}
	for _, r := range rooms {
		responder, err := room.New(r.code, r.campus, r.capacity, r.turno, memBus, roomStore, roomLimiter)
		if err != nil {
			log.Fatalf("room.New(%s): %v", r.code, err)
		}
		if err := dir.Register(r.code, responder.Capabilities()); err != nil {
			log.Fatalf("register room %s: %v", r.code, err)
		}
		go responder.Run(ctx)
	}

	sup, err := supervisor.New(memBus, dir, profStore, roomStore)
	if err != nil {
		log.Fatalf("supervisor.New: %v", err)
	}
	go sup.Run(ctx)

	professors := []struct {
		name     string
		order    int
		partTime bool
		subjects []model.Subject
	}{
		{
			name: "prof-0", order: 0, partTime: false,
			subjects: []model.Subject{
				{Name: "Algorithms", Code: "CS301", Level: 3, Parallel: 1, RequiredHours: 4, Enrollment: 28, Campus: "K", Activity: model.ActivityTheory},
				{Name: "Databases", Code: "CS302", Level: 4, Parallel: 1, RequiredHours: 4, Enrollment: 30, Campus: "K", Activity: model.ActivityLab},
			},
		},
		{
			name: "prof-1", order: 1, partTime: true,
			subjects: []model.Subject{
				{Name: "Ethics Seminar", Code: "HU101", Level: 1, Parallel: 1, RequiredHours: 2, Enrollment: 8, Campus: "P", Activity: model.ActivityWorkshop},
			},
		},
	}

	hub := dashboard.NewHub()
	go hub.Run(ctx)

	// No DSN configured here, so the audit trail is a no-op; the wiring
	// is identical when a real Postgres pool is behind it.
	var audit *auditstore.PostgresAudit

	filter := quickreject.New()
	limiter := quickreject.NewCFPLimiter(10, 5)
	cfg := professor.DefaultNegotiationConfig()
	cfg.OnTransition = func(name string, from, to professor.State) {
		hub.Publish(dashboard.Event{
			Kind:      dashboard.EventFSMTransition,
			Professor: name,
			State:     to.String(),
			Detail:    from.String() + " -> " + to.String(),
		})
		if to == professor.StateFinished {
			if err := audit.RecordEvent(ctx, auditstore.Event{
				Professor:    name,
				Performative: model.Inform,
				RecordedAt:   time.Now(),
			}); err != nil {
				log.Printf("audit record failed: %v", err)
			}
		}
	}

	for _, pc := range professors {
		fsm, err := professor.New(pc.name, pc.order, pc.partTime, pc.subjects, memBus, dir, filter, limiter, profStore, cfg)
		if err != nil {
			log.Fatalf("professor.New(%s): %v", pc.name, err)
		}
		if err := dir.Register(pc.name, fsm.Capabilities()); err != nil {
			log.Fatalf("register professor %s: %v", pc.name, err)
		}
		go fsm.Run(ctx)
	}

	if _, err := turn.Bootstrap(ctx, memBus, dir); err != nil {
		log.Fatalf("turn.Bootstrap: %v", err)
	}

	select {
	case <-sup.Done():
		hub.Publish(dashboard.Event{Kind: dashboard.EventRunComplete})
		log.Println("run complete: final reports written")
	case <-ctx.Done():
		log.Println("demo timed out before run completion")
	}
}
