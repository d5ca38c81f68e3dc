// Package professor implements the Professor Negotiation FSM: the
// four-state machine (SETUP, COLLECTING, EVALUATING, FINISHED) that
// drives the professor side of a Contract-Net round per subject
// instance.
package professor

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/agentsched/unisched/bus"
	"github.com/agentsched/unisched/directory"
	"github.com/agentsched/unisched/evaluator"
	"github.com/agentsched/unisched/idgen"
	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
	"github.com/agentsched/unisched/quickreject"
)

// State is one of the four named FSM states. No error path leaves the
// FSM outside these four; on an uncaught panic within a transition
// step recovers and falls back to SETUP.
type State int

const (
	StateSetup State = iota
	StateCollecting
	StateEvaluating
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "SETUP"
	case StateCollecting:
		return "COLLECTING"
	case StateEvaluating:
		return "EVALUATING"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Negotiation timing constants.
const (
	MaxRetries    = 3
	BaseTimeout   = 5 * time.Second
	BackoffOffset = 1 * time.Second
)

// NegotiationConfig parameterizes one FSM's timing. Explicit, constructed
// values only -- no env/flag parsing lives in this library.
type NegotiationConfig struct {
	MaxRetries          int
	BaseTimeout         time.Duration
	BackoffOffset       time.Duration
	MinCollectionWindow time.Duration
	AcceptWaitTimeout   time.Duration

	// OnTransition, when set, is invoked after every state change. It is
	// an observability tap (dashboard feed, audit trail); it must not
	// block and never drives negotiation logic.
	OnTransition func(name string, from, to State)
}

// DefaultNegotiationConfig returns the standard negotiation timing,
// with the minimum collection window fixed at 750ms.
func DefaultNegotiationConfig() NegotiationConfig {
	return NegotiationConfig{
		MaxRetries:          MaxRetries,
		BaseTimeout:         BaseTimeout,
		BackoffOffset:       BackoffOffset,
		MinCollectionWindow: 750 * time.Millisecond,
		AcceptWaitTimeout:   1 * time.Second,
	}
}

// Store is the subset of the persistence layer the FSM needs: an async
// upsert of its own current snapshot, plus the force-flush invoked on
// the FINISHED cleanup path.
type Store interface {
	Upsert(snapshot model.ProfessorSnapshot)
	ForceFlush() error
}

// occupiedSlot is one already-committed block in the professor's own
// weekly schedule, across every subject instance negotiated so far.
type occupiedSlot struct {
	subjectCode string
	campus      string
}

// instanceState holds the per-(subject, instance) negotiation state
// that is reset whenever the FSM moves on to a new instance. A subject
// with Parallel > 1 runs the same negotiation once per instance, each
// with its own countdown and record.
type instanceState struct {
	bloquesPendientes int
	record            model.AssignationRecord
	blocksByDay       map[model.Day]int
	retries           int
}

// FSM is one professor's Contract-Net negotiation actor. It owns its
// subjects, its schedule, and its own inbox; no other agent mutates it.
type FSM struct {
	name     string
	order    int
	partTime bool
	subjects []model.Subject

	currentSubjectIndex  int
	currentInstanceIndex int
	inst                 instanceState

	occupied    map[model.Day]map[int]occupiedSlot
	roomUsage   map[string]int
	mostUsed    string
	assignments []model.FinalAssignment

	transport bus.Transport
	inbox     *bus.Inbox
	directory *directory.Directory
	filter    *quickreject.Filter
	limiter   *quickreject.CFPLimiter
	store     Store
	cfg       NegotiationConfig

	state State

	// round state, valid only within the SETUP->COLLECTING->EVALUATING span
	expected   map[string]bool // room addresses expecting a reply this round
	replied    map[string]bool
	seenMsgIDs map[string]bool
	proposals  []model.Proposal
	roundConvo string
}

// New constructs a professor FSM and registers it on transport under
// address name. It does not start negotiating until Run is called and
// a START message arrives.
func New(name string, order int, partTime bool, subjects []model.Subject, transport bus.Transport, dir *directory.Directory, filter *quickreject.Filter, limiter *quickreject.CFPLimiter, store Store, cfg NegotiationConfig) (*FSM, error) {
	inbox, err := transport.Register(name)
	if err != nil {
		return nil, fmt.Errorf("professor: register %s: %w", name, err)
	}
	p := &FSM{
		name:       name,
		order:      order,
		partTime:   partTime,
		subjects:   subjects,
		occupied:   make(map[model.Day]map[int]occupiedSlot),
		roomUsage:  make(map[string]int),
		transport:  transport,
		inbox:      inbox,
		directory:  dir,
		filter:     filter,
		limiter:    limiter,
		store:      store,
		cfg:        cfg,
		state:      StateSetup,
		seenMsgIDs: make(map[string]bool),
	}
	return p, nil
}

// Capabilities describes this professor for Directory registration.
func (p *FSM) Capabilities() []model.Capability {
	return []model.Capability{{
		ServiceType: "professor",
		Properties: map[string]string{
			"order": strconv.Itoa(p.order),
			"name":  p.name,
		},
	}}
}

// Order returns the professor's strict turn position.
func (p *FSM) Order() int { return p.order }

// Name returns the professor's registered address.
func (p *FSM) Name() string { return p.name }

// Run blocks until a matching START is received, then drives the FSM
// to FINISHED. It always returns; FINISHED's own cleanup is run before
// Run returns.
func (p *FSM) Run(ctx context.Context) {
	if !p.waitForStart(ctx) {
		return
	}

	for {
		prev := p.state
		next := p.step(ctx)
		metrics.ProfessorState.WithLabelValues(p.name).Set(float64(next))
		if p.cfg.OnTransition != nil && next != prev {
			p.cfg.OnTransition(p.name, prev, next)
		}
		p.state = next
		if next == StateFinished {
			p.runFinished(ctx)
			return
		}
	}
}

// step executes exactly one state's transition logic, recovering into
// SETUP on any uncaught panic so no error path leaves the FSM outside
// its four named states.
func (p *FSM) step(ctx context.Context) (next State) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[FSM %s] recovered panic in state %s: %v; falling back to SETUP", p.name, p.state, r)
			next = StateSetup
		}
	}()

	switch p.state {
	case StateSetup:
		return p.runSetup(ctx)
	case StateCollecting:
		return p.runCollecting(ctx)
	case StateEvaluating:
		return p.runEvaluating(ctx)
	default:
		return StateSetup
	}
}

// waitForStart blocks until an INFORM carrying this professor's
// next_order arrives (the turn-token handoff). Any other message
// received before START is dropped.
func (p *FSM) waitForStart(ctx context.Context) bool {
	want := strconv.Itoa(p.order)
	for {
		msg, ok, err := p.inbox.Receive(ctx, 2*time.Second)
		if err != nil {
			return false
		}
		if !ok {
			select {
			case <-ctx.Done():
				return false
			default:
				continue
			}
		}
		if msg.Protocol == model.ProtocolSystemControl && msg.Performative == model.Inform && msg.Metadata["next_order"] == want {
			return true
		}
	}
}

// currentSubject returns the subject instance currently being
// negotiated, or false once every subject has been exhausted.
func (p *FSM) currentSubject() (model.Subject, bool) {
	if p.currentSubjectIndex >= len(p.subjects) {
		return model.Subject{}, false
	}
	return p.subjects[p.currentSubjectIndex], true
}

func (p *FSM) instanceKey() string {
	subject, ok := p.currentSubject()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s#%d", subject.Code, p.currentInstanceIndex)
}

// resetInstance clears per-instance negotiation state at the start of
// a new subject instance: AssignationRecord, retry counter, and the
// remaining-blocks countdown.
func (p *FSM) resetInstance(subject model.Subject) {
	p.inst = instanceState{
		bloquesPendientes: subject.RequiredHours,
		blocksByDay:       make(map[model.Day]int),
	}
}

// advance moves to the next instance of the current subject, cycling
// through Parallel instances before moving to the next subject.
func (p *FSM) advance() {
	subject, ok := p.currentSubject()
	if !ok {
		return
	}
	parallel := subject.Parallel
	if parallel < 1 {
		parallel = 1
	}
	p.currentInstanceIndex++
	if p.currentInstanceIndex >= parallel {
		p.currentInstanceIndex = 0
		p.currentSubjectIndex++
	}
}

func (p *FSM) recordRoomUse(code string) {
	p.roomUsage[code]++
	if p.mostUsed == "" || p.roomUsage[code] > p.roomUsage[p.mostUsed] {
		p.mostUsed = code
	}
}

// snapshot builds an immutable copy of this professor's state, safe to
// hand to the Store.
func (p *FSM) snapshot() model.ProfessorSnapshot {
	assignments := make([]model.FinalAssignment, len(p.assignments))
	copy(assignments, p.assignments)
	return model.ProfessorSnapshot{
		Name:                 p.name,
		Order:                p.order,
		PartTime:             p.partTime,
		CurrentSubjectIndex:  p.currentSubjectIndex,
		CurrentInstanceIndex: p.currentInstanceIndex,
		SubjectsRequested:    len(p.subjects),
		Assignments:          assignments,
		Completed:            p.currentSubjectIndex >= len(p.subjects),
	}
}

// buildEvaluatorContext assembles the Context the Constraint Evaluator
// needs for the subject instance currently under negotiation.
func (p *FSM) buildEvaluatorContext(subject model.Subject) evaluator.Context {
	occ := make(map[model.Day]map[int]evaluator.OccupiedSlot, len(p.occupied))
	for day, slots := range p.occupied {
		inner := make(map[int]evaluator.OccupiedSlot, len(slots))
		for block, s := range slots {
			inner[block] = evaluator.OccupiedSlot{SubjectCode: s.subjectCode, Campus: s.campus}
		}
		occ[day] = inner
	}
	subjectBlocksToday := make(map[model.Day]int, len(p.inst.blocksByDay))
	for d, n := range p.inst.blocksByDay {
		subjectBlocksToday[d] = n
	}
	return evaluator.Context{
		Subject:            subject,
		PartTime:           p.partTime,
		BloquesPendientes:  p.inst.bloquesPendientes,
		Occupied:           occ,
		SubjectBlocksToday: subjectBlocksToday,
		RoomUsage:          p.roomUsage,
		MostUsedRoom:       p.mostUsed,
	}
}

func (p *FSM) freshCorrelationID() string {
	return idgen.New()
}

func (p *FSM) conversationID() string {
	return fmt.Sprintf("neg-%s-%d", p.name, p.inst.bloquesPendientes)
}
