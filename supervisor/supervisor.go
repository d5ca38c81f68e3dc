// Package supervisor implements run-completion detection: it listens
// for the last professor's shutdown INFORM, then triggers final
// report generation on both Stores and signals process-wide
// completion.
package supervisor

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentsched/unisched/bus"
	"github.com/agentsched/unisched/directory"
	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// ProfessorStore is the subset of store.ProfessorStore the Supervisor needs.
type ProfessorStore interface {
	GenerateFinalReport(externalState map[string]model.ProfessorSnapshot) error
}

// RoomStore is the subset of store.RoomStore the Supervisor needs.
type RoomStore interface {
	GenerateFinalReport(externalState map[string]model.RoomSnapshot) error
}

// Address is the fixed Directory address a Supervisor registers under.
const Address = "supervisor"

// Supervisor watches for run completion and drives the final shutdown
// sequence: flush both Stores, deregister, signal done. It has no
// telemetry pipeline to stop; Prometheus metrics stay registered.
type Supervisor struct {
	transport bus.Transport
	inbox     *bus.Inbox
	directory *directory.Directory
	profStore ProfessorStore
	roomStore RoomStore

	done chan struct{}
}

// New constructs a Supervisor and registers it on transport and dir
// under Address.
func New(transport bus.Transport, dir *directory.Directory, profStore ProfessorStore, roomStore RoomStore) (*Supervisor, error) {
	inbox, err := transport.Register(Address)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		transport: transport,
		inbox:     inbox,
		directory: dir,
		profStore: profStore,
		roomStore: roomStore,
		done:      make(chan struct{}),
	}
	if err := dir.Register(Address, s.Capabilities()); err != nil {
		return nil, err
	}
	return s, nil
}

// Capabilities describes the Supervisor for Directory registration.
func (s *Supervisor) Capabilities() []model.Capability {
	return []model.Capability{{ServiceType: "supervisor", Properties: map[string]string{}}}
}

// Done is closed once the Supervisor has completed the shutdown sequence.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Run services the inbox until a system-control CANCEL/INFORM arrives
// (or ctx is cancelled), then drives shutdown exactly once.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		msg, ok, err := s.inbox.Receive(ctx, time.Second)
		if err != nil {
			return
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		if !isShutdownSignal(msg) {
			continue
		}
		s.shutdown(ctx)
		return
	}
}

func isShutdownSignal(msg model.Message) bool {
	if msg.Protocol != model.ProtocolSystemControl {
		return false
	}
	if msg.Ontology != model.OntologySystemControl {
		return false
	}
	return msg.Performative == model.Cancel || msg.Performative == model.Inform
}

// shutdown force-flushes both Stores concurrently, deregisters, and
// signals completion. Each step absorbs its own errors: a failed flush
// or deregister never blocks the completion signal.
func (s *Supervisor) shutdown(ctx context.Context) {
	log.Printf("[SUPERVISOR] run-complete signal received, generating final reports")

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.profStore == nil {
			return nil
		}
		if err := s.profStore.GenerateFinalReport(nil); err != nil {
			log.Printf("[SUPERVISOR] professor store final report failed: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if s.roomStore == nil {
			return nil
		}
		if err := s.roomStore.GenerateFinalReport(nil); err != nil {
			log.Printf("[SUPERVISOR] room store final report failed: %v", err)
		}
		return nil
	})
	_ = g.Wait()

	if err := s.directory.Deregister(Address); err != nil {
		log.Printf("[SUPERVISOR] directory deregister failed: %v", err)
	}
	s.transport.Deregister(Address)

	metrics.RunCompleted.Inc()
	close(s.done)
}
