// Package room implements the Room Responder: a single-threaded actor
// that owns one room's weekly grid and answers CFP / ACCEPT_PROPOSAL
// messages addressed to it, one at a time, in arrival order.
package room

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/agentsched/unisched/bus"
	"github.com/agentsched/unisched/idgen"
	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
	"github.com/agentsched/unisched/quickreject"
)

// Store is the subset of the persistence layer a Responder needs: an
// async upsert of the room's current grid snapshot.
type Store interface {
	UpsertRoom(snapshot model.RoomSnapshot)
}

// Responder owns the grid for one room and serves its inbox.
type Responder struct {
	code     string
	campus   string
	capacity int
	turno    int

	transport bus.Transport
	store     Store
	inbox     *bus.Inbox
	limiter   *quickreject.CFPLimiter

	grid map[model.Day][model.MaxBlock + 1]*model.RoomAssignment
}

// New constructs a Responder and registers it on transport under address
// code. limiter, when non-nil, bounds the rate of ACCEPT_PROPOSAL
// batches this room admits; a throttled batch is dropped unanswered and
// the professor's bounded INFORM wait absorbs it as a timeout.
func New(code, campus string, capacity, turno int, transport bus.Transport, store Store, limiter *quickreject.CFPLimiter) (*Responder, error) {
	inbox, err := transport.Register(code)
	if err != nil {
		return nil, err
	}
	r := &Responder{
		code:      code,
		campus:    campus,
		capacity:  capacity,
		turno:     turno,
		transport: transport,
		store:     store,
		inbox:     inbox,
		limiter:   limiter,
		grid:      make(map[model.Day][model.MaxBlock + 1]*model.RoomAssignment),
	}
	for _, d := range model.Days {
		r.grid[d] = [model.MaxBlock + 1]*model.RoomAssignment{}
	}
	return r, nil
}

// Capabilities describes this room for Directory registration.
func (r *Responder) Capabilities() []model.Capability {
	return []model.Capability{{
		ServiceType: "room",
		Properties: map[string]string{
			"campus":   r.campus,
			"code":     r.code,
			"capacity": strconv.Itoa(r.capacity),
		},
	}}
}

// Run services the inbox until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) {
	for {
		msg, ok, err := r.inbox.Receive(ctx, time.Second)
		if err != nil {
			return
		}
		if !ok {
			continue
		}
		r.handle(ctx, msg)
	}
}

func (r *Responder) handle(ctx context.Context, msg model.Message) {
	switch msg.Performative {
	case model.CFP:
		r.handleCFP(ctx, msg)
	case model.AcceptProposal:
		r.handleAccept(ctx, msg)
	default:
		// ignored per contract
	}
}

func (r *Responder) handleCFP(ctx context.Context, msg model.Message) {
	available := r.freeBlocksByDay()

	hasFree := false
	for _, blocks := range available {
		if len(blocks) > 0 {
			hasFree = true
			break
		}
	}

	reply := model.Message{
		ID:             idgen.New(),
		From:           r.code,
		To:             msg.From,
		Protocol:       model.ProtocolContractNet,
		Ontology:       model.OntologyClassroomAvailability,
		ConversationID: msg.ConversationID,
		CorrelationID:  msg.CorrelationID,
	}

	if !hasFree {
		reply.Performative = model.Refuse
	} else {
		reply.Performative = model.Propose
		reply.Body = model.ClassroomAvailability{
			Codigo:          r.code,
			Campus:          r.campus,
			Capacidad:       r.capacity,
			Turno:           r.turno,
			AvailableBlocks: available,
		}
	}

	if err := r.transport.Send(ctx, reply); err != nil {
		log.Printf("[room %s] failed to reply to CFP from %s: %v", r.code, msg.From, err)
	}
}

func (r *Responder) handleAccept(ctx context.Context, msg model.Message) {
	batch, ok := msg.Body.(model.BatchAssignmentRequest)
	if !ok {
		metrics.MalformedMessages.WithLabelValues(r.code).Inc()
		return
	}

	if r.limiter != nil && !r.limiter.Allow(r.code) {
		log.Printf("[room %s] ACCEPT_PROPOSAL from %s throttled", r.code, msg.From)
		return
	}

	var confirmed []model.ConfirmedAssignment
	for _, req := range batch.Requests {
		if req.ClassroomCode != r.code {
			continue
		}
		if req.Block < 1 || req.Block > model.MaxBlock {
			continue
		}
		slots, ok := r.grid[req.Day]
		if !ok || slots[req.Block] != nil {
			continue
		}

		occupancy := 0.0
		if r.capacity > 0 {
			occupancy = float64(req.Vacancy) / float64(r.capacity)
		}
		slots[req.Block] = &model.RoomAssignment{
			SubjectName:  req.SubjectName,
			Satisfaction: req.Satisfaction,
			Occupancy:    occupancy,
		}
		r.grid[req.Day] = slots

		confirmed = append(confirmed, model.ConfirmedAssignment{
			Day:           req.Day,
			Block:         req.Block,
			ClassroomCode: r.code,
			Satisfaction:  req.Satisfaction,
		})
	}

	if len(confirmed) == 0 {
		return
	}
	metrics.RoomOccupancy.WithLabelValues(r.code).Set(r.filledFraction())

	reply := model.Message{
		ID:             idgen.New(),
		From:           r.code,
		To:             msg.From,
		Performative:   model.Inform,
		Protocol:       model.ProtocolContractNet,
		Ontology:       model.OntologyRoomAssignment,
		ConversationID: msg.ConversationID,
		CorrelationID:  msg.CorrelationID,
		Body:           model.BatchAssignmentConfirmation{Confirmed: confirmed},
	}
	if err := r.transport.Send(ctx, reply); err != nil {
		log.Printf("[room %s] failed to send INFORM to %s: %v", r.code, msg.From, err)
	}

	if r.store != nil {
		r.store.UpsertRoom(r.snapshot())
	}
}

// filledFraction reports how much of the weekly grid is occupied.
func (r *Responder) filledFraction() float64 {
	filled := 0
	for _, slots := range r.grid {
		for b := 1; b <= model.MaxBlock; b++ {
			if slots[b] != nil {
				filled++
			}
		}
	}
	return float64(filled) / float64(len(model.Days)*model.MaxBlock)
}

func (r *Responder) freeBlocksByDay() map[model.Day][]int {
	result := make(map[model.Day][]int)
	for _, d := range model.Days {
		slots := r.grid[d]
		var free []int
		for b := 1; b <= model.MaxBlock; b++ {
			if slots[b] == nil {
				free = append(free, b)
			}
		}
		if len(free) > 0 {
			result[d] = free
		}
	}
	return result
}

func (r *Responder) snapshot() model.RoomSnapshot {
	gridCopy := make(map[model.Day][model.MaxBlock + 1]*model.RoomAssignment, len(r.grid))
	for d, slots := range r.grid {
		gridCopy[d] = slots
	}
	return model.RoomSnapshot{
		Code:     r.code,
		Campus:   r.campus,
		Capacity: r.capacity,
		Turno:    r.turno,
		Grid:     gridCopy,
	}
}
