package professor

import (
	"context"
	"log"

	"github.com/agentsched/unisched/idgen"
	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
	"github.com/agentsched/unisched/quickreject"
)

// runSetup is the SETUP state: pick (or re-pick) the subject instance
// under negotiation, filter candidate rooms, and broadcast one CFP per
// survivor.
func (p *FSM) runSetup(ctx context.Context) State {
	subject, ok := p.currentSubject()
	if !ok {
		return StateFinished
	}

	// A fresh instance starts with a clean record; a re-entry from a
	// failed COLLECTING/EVALUATING round keeps its retry counter and
	// partial bloques_pendientes.
	if p.inst.blocksByDay == nil {
		p.resetInstance(subject)
	}

	rooms := p.candidateRooms(subject)
	if len(rooms) == 0 {
		p.inst.retries++
		metrics.NegotiationRetries.WithLabelValues(p.name).Inc()
		if p.inst.retries >= p.cfg.MaxRetries {
			log.Printf("[FSM %s] no candidate rooms for %s after %d retries, advancing", p.name, subject.Name, p.inst.retries)
			metrics.SubjectsAdvanced.WithLabelValues(p.name, "no_rooms_exhausted").Inc()
			p.advance()
			p.inst = instanceState{}
		}
		return StateSetup
	}

	p.broadcastCFP(ctx, subject, rooms)
	return StateCollecting
}

// candidateRooms queries the Directory for every registered room and
// applies the Quick-Reject pre-filter.
func (p *FSM) candidateRooms(subject model.Subject) []model.DirectoryEntry {
	entries := p.directory.Search("room", nil)
	survivors := make([]model.DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		info, ok := roomInfoFromEntry(e)
		if !ok {
			continue
		}
		if p.filter.Allow(subject, info) {
			survivors = append(survivors, e)
		}
	}
	return survivors
}

func roomInfoFromEntry(e model.DirectoryEntry) (quickreject.RoomInfo, bool) {
	for _, cap := range e.Capabilities {
		if cap.ServiceType != "room" {
			continue
		}
		capacity := 0
		if v, ok := cap.Properties["capacity"]; ok {
			capacity = atoiSafe(v)
		}
		return quickreject.RoomInfo{
			Code:     cap.Properties["code"],
			Campus:   cap.Properties["campus"],
			Capacity: capacity,
		}, true
	}
	return quickreject.RoomInfo{}, false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// broadcastCFP sends one CFP to every survivor and records the
// expected-responder set for COLLECTING.
func (p *FSM) broadcastCFP(ctx context.Context, subject model.Subject, rooms []model.DirectoryEntry) {
	p.roundConvo = p.conversationID()
	p.expected = make(map[string]bool, len(rooms))
	p.replied = make(map[string]bool, len(rooms))
	p.proposals = nil

	for _, room := range rooms {
		if p.limiter != nil && !p.limiter.Allow(p.name) {
			continue
		}
		msg := model.Message{
			ID:             idgen.New(),
			From:           p.name,
			To:             room.Address,
			Performative:   model.CFP,
			Protocol:       model.ProtocolContractNet,
			Ontology:       model.OntologyClassroomAvailability,
			ConversationID: p.roundConvo,
			CorrelationID:  p.freshCorrelationID(),
			Body: model.CFPBody{
				SubjectName:       subject.Name,
				SubjectCode:       subject.Code,
				Enrollment:        subject.Enrollment,
				Level:             subject.Level,
				Campus:            subject.Campus,
				Activity:          subject.Activity,
				BloquesPendientes: p.inst.bloquesPendientes,
				PartTime:          p.partTime,
				LastRoom:          p.inst.record.LastRoom,
				LastDay:           p.inst.record.LastDay,
				LastBlock:         p.inst.record.LastBlock,
			},
		}
		if err := p.transport.Send(ctx, msg); err != nil {
			log.Printf("[FSM %s] CFP send to %s failed: %v", p.name, room.Address, err)
			continue
		}
		p.expected[room.Address] = true
		metrics.CFPsSent.WithLabelValues(p.name).Inc()
	}
}
