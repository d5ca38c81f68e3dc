package professor

import (
	"context"
	"testing"
	"time"

	"github.com/agentsched/unisched/bus"
	"github.com/agentsched/unisched/directory"
	"github.com/agentsched/unisched/model"
	"github.com/agentsched/unisched/quickreject"
	"github.com/agentsched/unisched/room"
)

type fakeStore struct {
	upserts []model.ProfessorSnapshot
	flushes int
}

func (f *fakeStore) Upsert(s model.ProfessorSnapshot) {
	f.upserts = append(f.upserts, s)
}

func (f *fakeStore) ForceFlush() error {
	f.flushes++
	return nil
}

func fastConfig() NegotiationConfig {
	cfg := DefaultNegotiationConfig()
	cfg.BaseTimeout = 200 * time.Millisecond
	cfg.BackoffOffset = 20 * time.Millisecond
	cfg.MinCollectionWindow = 10 * time.Millisecond
	cfg.AcceptWaitTimeout = 200 * time.Millisecond
	return cfg
}

// A single 2-block odd-level subject against a single matching room
// should fully commit and reach FINISHED.
func TestHappyPathSingleSubjectTwoBlocks(t *testing.T) {
	memBus := bus.NewInMemoryBus()
	dir := directory.New(time.Minute)
	store := &fakeStore{}

	roomResponder, err := room.New("K101", "K", 30, 1, memBus, nil, nil)
	if err != nil {
		t.Fatalf("room.New: %v", err)
	}
	dir.Register("K101", roomResponder.Capabilities())

	subject := model.Subject{
		Name: "Algorithms", Code: "CS301", Level: 3, Parallel: 1,
		RequiredHours: 2, Enrollment: 25, Campus: "K", Activity: model.ActivityTheory,
	}
	fsm, err := New("prof-0", 0, false, []model.Subject{subject}, memBus, dir, quickreject.New(), nil, store, fastConfig())
	if err != nil {
		t.Fatalf("professor.New: %v", err)
	}
	dir.Register("prof-0", fsm.Capabilities())

	supervisorInbox, _ := memBus.Register("supervisor")
	dir.Register("supervisor", []model.Capability{{ServiceType: "supervisor", Properties: map[string]string{}}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go roomResponder.Run(ctx)

	done := make(chan struct{})
	go func() {
		fsm.Run(ctx)
		close(done)
	}()

	// external bootstrap: activate order-0
	if err := memBus.Send(ctx, model.Message{
		ID: "boot-1", From: "bootstrap", To: "prof-0",
		Performative: model.Inform, Protocol: model.ProtocolSystemControl,
		Ontology: model.OntologySystemControl, ConversationID: "negotiation-start-base",
		Metadata: map[string]string{"next_order": "0"},
	}); err != nil {
		t.Fatalf("bootstrap send: %v", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("professor did not reach FINISHED in time")
	}

	if got := len(fsm.assignments); got != 2 {
		t.Fatalf("expected 2 committed blocks, got %d (%+v)", got, fsm.assignments)
	}
	if fsm.inst.bloquesPendientes != 0 {
		t.Fatalf("expected bloques_pendientes to reach 0, got %d", fsm.inst.bloquesPendientes)
	}
	if store.flushes == 0 {
		t.Fatal("expected the FINISHED cleanup path to force-flush the store")
	}
	for _, a := range fsm.assignments {
		if a.Block < 1 || a.Block > 4 {
			if a.Block != model.MaxBlock {
				t.Fatalf("expected odd-level preferred blocks (1..4 or 9), got block %d", a.Block)
			}
		}
	}

	select {
	case msg, ok := <-waitSupervisorInform(supervisorInbox):
		if !ok {
			t.Fatal("expected supervisor INFORM, channel closed")
		}
		if msg.Ontology != model.OntologySystemControl {
			t.Fatalf("expected system-control ontology, got %s", msg.Ontology)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected supervisor to be notified of run completion")
	}
}

func waitSupervisorInform(inbox *bus.Inbox) <-chan model.Message {
	out := make(chan model.Message, 1)
	go func() {
		msg, ok, _ := inbox.Receive(context.Background(), 2*time.Second)
		if ok {
			out <- msg
		}
		close(out)
	}()
	return out
}

// Quick-Reject filters out the only room, so the professor should
// exhaust its retry budget and advance with zero assignments.
func TestCapacityMismatchAdvancesAfterMaxRetries(t *testing.T) {
	memBus := bus.NewInMemoryBus()
	dir := directory.New(time.Minute)

	roomResponder, err := room.New("K101", "K", 30, 1, memBus, nil, nil)
	if err != nil {
		t.Fatalf("room.New: %v", err)
	}
	dir.Register("K101", roomResponder.Capabilities())

	subject := model.Subject{
		Name: "BigLecture", Code: "CS999", Level: 2, Parallel: 1,
		RequiredHours: 2, Enrollment: 50, Campus: "K", Activity: model.ActivityTheory,
	}
	fsm, err := New("prof-0", 0, false, []model.Subject{subject}, memBus, dir, quickreject.New(), nil, nil, fastConfig())
	if err != nil {
		t.Fatalf("professor.New: %v", err)
	}
	dir.Register("prof-0", fsm.Capabilities())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go roomResponder.Run(ctx)

	done := make(chan struct{})
	go func() {
		fsm.Run(ctx)
		close(done)
	}()

	memBus.Send(ctx, model.Message{
		ID: "boot-1", From: "bootstrap", To: "prof-0",
		Performative: model.Inform, Protocol: model.ProtocolSystemControl,
		Ontology: model.OntologySystemControl, ConversationID: "negotiation-start-base",
		Metadata: map[string]string{"next_order": "0"},
	})

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("professor did not reach FINISHED in time")
	}

	if len(fsm.assignments) != 0 {
		t.Fatalf("expected zero assignments, got %d", len(fsm.assignments))
	}
	if fsm.currentSubjectIndex != 1 {
		t.Fatalf("expected the subject to have been advanced past, got index %d", fsm.currentSubjectIndex)
	}
}

// Two professors in strict turn order negotiating for the same single
// room: order 1 only starts after order 0's FINISHED handoff, and no
// (day, block) is ever granted twice.
func TestContentionTwoProfessorsOneRoom(t *testing.T) {
	memBus := bus.NewInMemoryBus()
	dir := directory.New(time.Minute)
	filter := quickreject.New()

	roomResponder, err := room.New("K101", "K", 30, 1, memBus, nil, nil)
	if err != nil {
		t.Fatalf("room.New: %v", err)
	}
	dir.Register("K101", roomResponder.Capabilities())

	subject := model.Subject{
		Name: "Algorithms", Code: "CS301", Level: 3, Parallel: 1,
		RequiredHours: 2, Enrollment: 25, Campus: "K", Activity: model.ActivityTheory,
	}

	fsm0, err := New("prof-0", 0, false, []model.Subject{subject}, memBus, dir, filter, nil, nil, fastConfig())
	if err != nil {
		t.Fatalf("professor.New(prof-0): %v", err)
	}
	dir.Register("prof-0", fsm0.Capabilities())

	fsm1, err := New("prof-1", 1, false, []model.Subject{subject}, memBus, dir, filter, nil, nil, fastConfig())
	if err != nil {
		t.Fatalf("professor.New(prof-1): %v", err)
	}
	dir.Register("prof-1", fsm1.Capabilities())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go roomResponder.Run(ctx)

	done0 := make(chan struct{})
	done1 := make(chan struct{})
	go func() { fsm0.Run(ctx); close(done0) }()
	go func() { fsm1.Run(ctx); close(done1) }()

	memBus.Send(ctx, model.Message{
		ID: "boot-1", From: "bootstrap", To: "prof-0",
		Performative: model.Inform, Protocol: model.ProtocolSystemControl,
		Ontology: model.OntologySystemControl, ConversationID: "negotiation-start-base",
		Metadata: map[string]string{"next_order": "0"},
	})

	select {
	case <-done0:
	case <-ctx.Done():
		t.Fatal("prof-0 did not finish in time")
	}
	select {
	case <-done1:
	case <-ctx.Done():
		t.Fatal("prof-1 did not finish in time")
	}

	if len(fsm0.assignments) != 2 || len(fsm1.assignments) != 2 {
		t.Fatalf("expected both professors fully assigned, got %d and %d",
			len(fsm0.assignments), len(fsm1.assignments))
	}

	type slot struct {
		day   model.Day
		block int
	}
	granted := make(map[slot]string)
	for _, fsm := range []*FSM{fsm0, fsm1} {
		for _, a := range fsm.assignments {
			s := slot{a.Day, a.Block}
			if prior, taken := granted[s]; taken {
				t.Fatalf("slot %v granted to both %s and %s", s, prior, fsm.name)
			}
			granted[s] = fsm.name
		}
	}
}
