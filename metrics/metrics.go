// Package metrics exposes the Prometheus instrumentation for the
// negotiation system: package-level promauto gauges and counters, one
// per concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DirectorySize tracks the number of live entries in the Directory.
	DirectorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unisched_directory_size",
		Help: "Current number of live agents registered in the Directory",
	})

	// DirectoryEvictions counts TTL-based Directory evictions.
	DirectoryEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unisched_directory_evictions_total",
		Help: "Total number of Directory entries evicted for stale heartbeat",
	})

	// ProfessorState tracks each professor's current FSM state (0..3).
	ProfessorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "unisched_professor_fsm_state",
		Help: "Current FSM state per professor (0=SETUP,1=COLLECTING,2=EVALUATING,3=FINISHED)",
	}, []string{"professor"})

	// CFPsSent counts outbound CFP messages.
	CFPsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_cfps_sent_total",
		Help: "Total CFP messages sent by professors",
	}, []string{"professor"})

	// ProposalsReceived counts inbound PROPOSE replies.
	ProposalsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_proposals_received_total",
		Help: "Total PROPOSE replies received by professors",
	}, []string{"professor"})

	// RefusalsReceived counts inbound REFUSE replies.
	RefusalsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_refusals_received_total",
		Help: "Total REFUSE replies received by professors",
	}, []string{"professor"})

	// CommitsConfirmed counts blocks confirmed via INFORM after ACCEPT_PROPOSAL.
	CommitsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_commits_confirmed_total",
		Help: "Total block commits confirmed by rooms",
	}, []string{"professor", "room"})

	// NegotiationRetries counts SETUP/COLLECTING/EVALUATING retry-with-backoff events.
	NegotiationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_negotiation_retries_total",
		Help: "Total retry-with-backoff events per professor",
	}, []string{"professor"})

	// SubjectsAdvanced counts subject-instance completions (including forced advances).
	SubjectsAdvanced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_subjects_advanced_total",
		Help: "Total subject instances advanced (completed or abandoned after retries)",
	}, []string{"professor", "reason"})

	// StoreFlushes counts Store flush operations.
	StoreFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_store_flushes_total",
		Help: "Total buffered-store flush operations",
	}, []string{"store"})

	// StoreBufferDepth tracks the number of pending upserts awaiting flush.
	StoreBufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "unisched_store_buffer_depth",
		Help: "Current number of pending upserts awaiting flush",
	}, []string{"store"})

	// RoomOccupancy tracks the fraction of filled blocks per room.
	RoomOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "unisched_room_occupancy_ratio",
		Help: "Fraction of the weekly grid currently filled for a room",
	}, []string{"room"})

	// MalformedMessages counts messages dropped for an undecodable or
	// type-mismatched body.
	MalformedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unisched_malformed_messages_total",
		Help: "Total messages dropped because their body could not be decoded",
	}, []string{"agent"})

	// QuickRejectCacheHits counts quick-reject cache hits.
	QuickRejectCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unisched_quickreject_cache_hits_total",
		Help: "Total quick-reject filter cache hits",
	})

	// TurnHandoffs counts successful turn-token handoffs between professors.
	TurnHandoffs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unisched_turn_handoffs_total",
		Help: "Total turn-token handoffs from one professor to the next",
	})

	// RunCompleted fires once when the Supervisor detects run completion.
	RunCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unisched_run_completed_total",
		Help: "Total times the Supervisor has observed a completed run",
	})
)
