// Package turn implements the Turn Controller: a strict dense integer
// order over professors, handed forward with a single INFORM per
// completion instead of a lease or fencing token.
package turn

import (
	"context"
	"strconv"

	"github.com/agentsched/unisched/bus"
	"github.com/agentsched/unisched/directory"
	"github.com/agentsched/unisched/idgen"
	"github.com/agentsched/unisched/metrics"
	"github.com/agentsched/unisched/model"
)

// Conversation ids distinguish the very first handoff (no predecessor)
// from every subsequent one.
const (
	ConversationStart     = "negotiation-start"
	ConversationStartBase = "negotiation-start-base"
)

// NotifyNext looks up the professor at currentOrder+1 and hands it the
// token. It reports false, nil when no such professor is registered
// (the caller was the last in line).
func NotifyNext(ctx context.Context, transport bus.Transport, dir *directory.Directory, currentOrder int) (bool, error) {
	return notify(ctx, transport, dir, currentOrder+1, ConversationStart)
}

// Bootstrap activates the professor with order 0, external to any FSM.
func Bootstrap(ctx context.Context, transport bus.Transport, dir *directory.Directory) (bool, error) {
	return notify(ctx, transport, dir, 0, ConversationStartBase)
}

// ConversationShutdown tags the INFORM a professor sends to the
// Supervisor once it finds no order+1 successor in the Directory.
const ConversationShutdown = "run-shutdown"

// NotifySupervisor looks up the registered supervisor and sends it the
// shutdown-inform that ends the run. It reports false, nil when no
// supervisor is registered.
func NotifySupervisor(ctx context.Context, transport bus.Transport, dir *directory.Directory, from string) (bool, error) {
	entries := dir.Search("supervisor", nil)
	if len(entries) == 0 {
		return false, nil
	}

	msg := model.Message{
		ID:             idgen.New(),
		From:           from,
		To:             entries[0].Address,
		Performative:   model.Inform,
		Protocol:       model.ProtocolSystemControl,
		Ontology:       model.OntologySystemControl,
		ConversationID: ConversationShutdown,
		Body:           "RUN_COMPLETE",
	}
	if err := transport.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func notify(ctx context.Context, transport bus.Transport, dir *directory.Directory, targetOrder int, conversationID string) (bool, error) {
	target := strconv.Itoa(targetOrder)
	entries := dir.Search("professor", map[string]string{"order": target})
	if len(entries) == 0 {
		return false, nil
	}

	msg := model.Message{
		ID:             idgen.New(),
		From:           "turn-controller",
		To:             entries[0].Address,
		Performative:   model.Inform,
		Protocol:       model.ProtocolSystemControl,
		Ontology:       model.OntologySystemControl,
		ConversationID: conversationID,
		Metadata:       map[string]string{"next_order": target},
		Body:           "START",
	}
	if err := transport.Send(ctx, msg); err != nil {
		return false, err
	}
	metrics.TurnHandoffs.Inc()
	return true, nil
}
