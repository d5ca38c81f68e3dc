// Package auditstore is an optional, durable append-only log of every
// negotiation event (CFP/PROPOSE/ACCEPT_PROPOSAL/INFORM) and every
// committed Assignment, for post-run analysis. It is genuinely optional:
// a nil *PostgresAudit is a no-op that callers can wire in unconditionally.
package auditstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentsched/unisched/model"
)

// Event is one row of the negotiation audit trail.
type Event struct {
	Professor      string
	Room           string
	Performative   model.Performative
	ConversationID string
	CorrelationID  string
	Day            model.Day
	Block          int
	Satisfaction   int
	RecordedAt     time.Time
}

// PostgresAudit appends negotiation events and committed assignments to
// a Postgres table.
type PostgresAudit struct {
	pool *pgxpool.Pool
}

// NewPostgresAudit connects to connString and verifies the connection
// with a bounded ping. A caller with no DSN configured can use a nil
// *PostgresAudit instead of calling this at all.
func NewPostgresAudit(ctx context.Context, connString string) (*PostgresAudit, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresAudit{pool: pool}, nil
}

// RecordEvent appends one negotiation-protocol event to the audit table.
func (a *PostgresAudit) RecordEvent(ctx context.Context, e Event) error {
	if a == nil || a.pool == nil {
		return nil
	}
	const query = `
		INSERT INTO negotiation_events
			(professor, room, performative, conversation_id, correlation_id, day, block, satisfaction, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := a.pool.Exec(ctx, query,
		e.Professor, e.Room, string(e.Performative), e.ConversationID, e.CorrelationID,
		string(e.Day), e.Block, e.Satisfaction, e.RecordedAt,
	)
	return err
}

// RecordAssignment appends one committed FinalAssignment for professor.
func (a *PostgresAudit) RecordAssignment(ctx context.Context, professor string, assignment model.FinalAssignment) error {
	if a == nil || a.pool == nil {
		return nil
	}
	const query = `
		INSERT INTO committed_assignments
			(professor, subject_code, instance, room, day, block, satisfaction, activity, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := a.pool.Exec(ctx, query,
		professor, assignment.SubjectCode, assignment.Instance, assignment.Room,
		string(assignment.Day), assignment.Block, assignment.Satisfaction, string(assignment.Activity),
	)
	return err
}

// Close releases the underlying connection pool. Safe to call on a nil
// receiver or one with no pool.
func (a *PostgresAudit) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}
