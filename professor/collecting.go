package professor

import (
	"context"
	"log"
	"time"

	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// runCollecting is the COLLECTING state: gather PROPOSE/REFUSE replies
// for a bounded, backed-off window, terminating early once every
// expected responder has answered.
func (p *FSM) runCollecting(ctx context.Context) State {
	subject, ok := p.currentSubject()
	if !ok {
		return StateFinished
	}

	timeout := p.cfg.BaseTimeout + (1<<uint(p.inst.retries))*p.cfg.BackoffOffset
	started := time.Now()
	deadline := started.Add(timeout)

	for {
		if len(p.expected) > 0 && len(p.replied) >= len(p.expected) {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, ok, err := p.inbox.Receive(ctx, remaining)
		if err != nil {
			return StateFinished
		}
		if !ok {
			break
		}
		p.handleCollectingMessage(msg)
	}

	p.enforceMinimumWindow(ctx, started)

	if len(p.proposals) > 0 {
		return StateEvaluating
	}
	return p.retryOrAdvance(subject, "all_refused")
}

func (p *FSM) handleCollectingMessage(msg model.Message) {
	if msg.ConversationID != p.roundConvo {
		return // stray reply from an earlier, abandoned round
	}
	if p.seenMsgIDs[msg.ID] {
		return
	}
	p.seenMsgIDs[msg.ID] = true

	switch msg.Performative {
	case model.Propose:
		avail, ok := msg.Body.(model.ClassroomAvailability)
		if !ok {
			metrics.MalformedMessages.WithLabelValues(p.name).Inc()
			return
		}
		p.replied[msg.From] = true
		p.proposals = append(p.proposals, model.Proposal{
			RoomCode:        avail.Codigo,
			Campus:          avail.Campus,
			Capacity:        avail.Capacidad,
			Turno:           avail.Turno,
			AvailableBlocks: avail.AvailableBlocks,
			ConversationID:  msg.ConversationID,
			CorrelationID:   msg.CorrelationID,
			MessageID:       msg.ID,
		})
		metrics.ProposalsReceived.WithLabelValues(p.name).Inc()
	case model.Refuse:
		p.replied[msg.From] = true
		metrics.RefusalsReceived.WithLabelValues(p.name).Inc()
	default:
		// anything else arriving mid-round is ignored
	}
}

// enforceMinimumWindow keeps the FSM from hammering rooms with
// back-to-back CFP rounds when every responder answers (or refuses)
// almost instantly.
func (p *FSM) enforceMinimumWindow(ctx context.Context, started time.Time) {
	elapsed := time.Since(started)
	if elapsed >= p.cfg.MinCollectionWindow {
		return
	}
	timer := time.NewTimer(p.cfg.MinCollectionWindow - elapsed)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// retryOrAdvance is the shared "no progress this round" fallback used
// both when COLLECTING ends with no usable proposals and when
// EVALUATING ends with no commits. An instance with no committed block
// at all is advanced at once; otherwise the search is broadened by
// dropping the last-room preference, and the instance is advanced once
// retries are exhausted.
func (p *FSM) retryOrAdvance(subject model.Subject, reason string) State {
	if p.inst.bloquesPendientes == subject.RequiredHours {
		// never made any progress on this instance at all
		log.Printf("[FSM %s] zero progress on %s (%s), advancing", p.name, subject.Name, reason)
		metrics.SubjectsAdvanced.WithLabelValues(p.name, reason).Inc()
		p.advance()
		p.inst = instanceState{}
		return StateSetup
	}

	p.inst.record.LastRoom = ""
	p.inst.retries++
	metrics.NegotiationRetries.WithLabelValues(p.name).Inc()
	if p.inst.retries >= p.cfg.MaxRetries {
		log.Printf("[FSM %s] retries exhausted for %s (%s), advancing with partial assignment", p.name, subject.Name, reason)
		metrics.SubjectsAdvanced.WithLabelValues(p.name, reason+"_partial").Inc()
		p.advance()
		p.inst = instanceState{}
	}
	return StateSetup
}
