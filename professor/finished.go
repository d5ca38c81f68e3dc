package professor

import (
	"context"
	"log"
	"time"

	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/turn"
)

// CleanupWatchdog bounds the entire FINISHED cleanup sequence.
const CleanupWatchdog = 10 * time.Second

// runFinished is the FINISHED state: record the completion metric,
// upsert and force-flush the Store, hand the turn token to the next
// professor (or notify the Supervisor if none remains), then deregister
// from the Directory and the transport. Every step absorbs its own
// errors; FINISHED always terminates.
func (p *FSM) runFinished(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, CleanupWatchdog)
	defer cancel()

	metrics.SubjectsAdvanced.WithLabelValues(p.name, "run_complete").Inc()

	if p.store != nil {
		p.store.Upsert(p.snapshot())
		if err := p.store.ForceFlush(); err != nil {
			log.Printf("[FSM %s] store flush on cleanup failed: %v", p.name, err)
		}
	}

	notified, err := turn.NotifyNext(ctx, p.transport, p.directory, p.order)
	if err != nil {
		log.Printf("[FSM %s] turn handoff failed: %v", p.name, err)
	}
	if !notified {
		if ok, err := turn.NotifySupervisor(ctx, p.transport, p.directory, p.name); err != nil {
			log.Printf("[FSM %s] supervisor notify failed: %v", p.name, err)
		} else if ok {
			metrics.RunCompleted.Inc()
		}
	}

	if err := p.directory.Deregister(p.name); err != nil {
		log.Printf("[FSM %s] directory deregister failed: %v", p.name, err)
	}
	p.transport.Deregister(p.name)

	log.Printf("[FSM %s] FINISHED: %d subjects, %d blocks committed", p.name, len(p.subjects), len(p.assignments))
}
