package professor

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/agentsched/unisched/evaluator"
	"github.com/agentsched/unisched/idgen"
	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// scoredCandidate is one (day, block) cell inside a single proposal,
// scored by the Constraint Evaluator.
type scoredCandidate struct {
	day    model.Day
	block  int
	result evaluator.Result
}

// rankedProposal pairs a proposal with its evaluated candidates, sorted
// best-first, and the proposal's overall score (its best candidate).
type rankedProposal struct {
	proposal   model.Proposal
	candidates []scoredCandidate
	score      int
}

// runEvaluating is the EVALUATING state: drain the proposal queue,
// score every candidate block, commit in best-score-first order, and
// decide the next state from what got committed.
func (p *FSM) runEvaluating(ctx context.Context) State {
	subject, ok := p.currentSubject()
	if !ok {
		return StateFinished
	}

	ranked := p.rankProposals(subject)
	p.proposals = nil

	committedAny := false

	for _, rp := range ranked {
		if p.inst.bloquesPendientes <= 0 {
			break
		}
		if len(rp.candidates) == 0 {
			continue
		}

		batch := p.buildBatch(rp)
		if len(batch) == 0 {
			continue
		}

		confirmed, err := p.commitBatch(ctx, rp.proposal, batch)
		if err != nil {
			log.Printf("[FSM %s] ACCEPT_PROPOSAL to %s failed: %v", p.name, rp.proposal.RoomCode, err)
			continue
		}
		if len(confirmed) > 0 {
			committedAny = true
			p.applyConfirmations(subject, rp.proposal.RoomCode, confirmed)
		}
	}

	if p.inst.bloquesPendientes == 0 {
		log.Printf("[FSM %s] %s instance %d complete", p.name, subject.Name, p.currentInstanceIndex)
		metrics.SubjectsAdvanced.WithLabelValues(p.name, "completed").Inc()
		p.advance()
		p.inst = instanceState{}
		return StateSetup
	}

	if committedAny {
		rooms := p.candidateRooms(subject)
		if len(rooms) == 0 {
			return p.retryOrAdvance(subject, "no_rooms_for_remainder")
		}
		p.broadcastCFP(ctx, subject, rooms)
		return StateCollecting
	}

	return p.retryOrAdvance(subject, "no_commits")
}

// rankProposals scores every (day, block) candidate in every proposal
// and orders proposals by their best candidate's score, descending,
// with a stable tie-break by room code.
func (p *FSM) rankProposals(subject model.Subject) []rankedProposal {
	out := make([]rankedProposal, 0, len(p.proposals))
	for _, proposal := range p.proposals {
		room := evaluator.RoomCandidate{Code: proposal.RoomCode, Campus: proposal.Campus, Capacity: proposal.Capacity}
		evalCtx := p.buildEvaluatorContext(subject)

		var candidates []scoredCandidate
		for day, blocks := range proposal.AvailableBlocks {
			for _, block := range blocks {
				res := evaluator.Evaluate(evalCtx, room, day, block)
				if res.Valid {
					candidates = append(candidates, scoredCandidate{day: day, block: block, result: res})
				}
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].result.Score > candidates[j].result.Score
		})

		best := 0
		if len(candidates) > 0 {
			best = candidates[0].result.Score
		}
		out = append(out, rankedProposal{proposal: proposal, candidates: candidates, score: best})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].proposal.RoomCode < out[j].proposal.RoomCode
	})
	return out
}

// buildBatch selects, from one proposal's ranked candidates, the
// (day, block) cells to actually request: the block must still be free
// in the professor's own schedule, the per-day subject cap (2) must not
// be exceeded by this batch, and the batch may not exceed the
// remaining bloques_pendientes.
func (p *FSM) buildBatch(rp rankedProposal) []model.AssignmentRequest {
	subject, _ := p.currentSubject()
	needed := p.inst.bloquesPendientes
	dayCounts := make(map[model.Day]int, len(p.inst.blocksByDay))
	for d, n := range p.inst.blocksByDay {
		dayCounts[d] = n
	}

	var batch []model.AssignmentRequest
	for _, c := range rp.candidates {
		if len(batch) >= needed {
			break
		}
		if slots, ok := p.occupied[c.day]; ok {
			if _, taken := slots[c.block]; taken {
				continue
			}
		}
		if dayCounts[c.day]+1 > 2 {
			continue
		}
		dayCounts[c.day]++
		batch = append(batch, model.AssignmentRequest{
			Day:           c.day,
			Block:         c.block,
			SubjectName:   subject.Name,
			SubjectCode:   subject.Code,
			Instance:      p.currentInstanceIndex,
			Activity:      subject.Activity,
			Satisfaction:  c.result.Satisfaction,
			ClassroomCode: rp.proposal.RoomCode,
			Vacancy:       subject.Enrollment,
		})
	}
	return batch
}

// commitBatch sends ACCEPT_PROPOSAL and waits up to AcceptWaitTimeout
// for the matching INFORM, preserving the CFP -> PROPOSE ->
// ACCEPT_PROPOSAL -> INFORM ordering within one conversation.
func (p *FSM) commitBatch(ctx context.Context, proposal model.Proposal, batch []model.AssignmentRequest) ([]model.ConfirmedAssignment, error) {
	correlationID := idgen.New()
	msg := model.Message{
		ID:             idgen.New(),
		From:           p.name,
		To:             proposal.RoomCode,
		Performative:   model.AcceptProposal,
		Protocol:       model.ProtocolContractNet,
		Ontology:       model.OntologyRoomAssignment,
		ConversationID: proposal.ConversationID,
		CorrelationID:  correlationID,
		Body:           model.BatchAssignmentRequest{Requests: batch},
	}
	if err := p.transport.Send(ctx, msg); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(p.cfg.AcceptWaitTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil // no INFORM in time: treated as zero confirmations, not an error
		}
		reply, ok, err := p.inbox.Receive(ctx, remaining)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if reply.From != proposal.RoomCode || reply.ConversationID != proposal.ConversationID {
			// stray message unrelated to this commit; re-queue is
			// unnecessary since COLLECTING/EVALUATING for the *same*
			// round already drained the inbox of relevant replies.
			continue
		}
		if reply.Performative != model.Inform {
			continue // e.g. a duplicate PROPOSE from the same round
		}
		conf, ok := reply.Body.(model.BatchAssignmentConfirmation)
		if !ok {
			metrics.MalformedMessages.WithLabelValues(p.name).Inc()
			return nil, nil // malformed confirmation: treated as zero commits
		}
		return conf.Confirmed, nil
	}
}

// applyConfirmations updates the professor's own schedule, persistent
// assignment list, and AssignationRecord for each block the room
// actually installed.
func (p *FSM) applyConfirmations(subject model.Subject, roomCode string, confirmed []model.ConfirmedAssignment) {
	for _, c := range confirmed {
		if p.occupied[c.Day] == nil {
			p.occupied[c.Day] = make(map[int]occupiedSlot)
		}
		p.occupied[c.Day][c.Block] = occupiedSlot{subjectCode: subject.Code, campus: subject.Campus}
		p.inst.blocksByDay[c.Day]++
		p.inst.bloquesPendientes--
		p.inst.record = model.AssignationRecord{LastDay: c.Day, LastBlock: c.Block, LastRoom: roomCode, Valid: true}

		p.assignments = append(p.assignments, model.FinalAssignment{
			SubjectName:  subject.Name,
			SubjectCode:  subject.Code,
			Instance:     p.currentInstanceIndex,
			Room:         roomCode,
			Day:          c.Day,
			Block:        c.Block,
			Satisfaction: c.Satisfaction,
			Activity:     subject.Activity,
		})
		p.recordRoomUse(roomCode)
		metrics.CommitsConfirmed.WithLabelValues(p.name, roomCode).Inc()

		if p.inst.bloquesPendientes <= 0 {
			break
		}
	}
	if p.store != nil {
		p.store.Upsert(p.snapshot())
	}
}
