/*
audit.go - Audit trail of every mutation attempt

PURPOSE:
  Every call into the submit path produces exactly one AuditEvent, whether
  the transaction was accepted or rejected. This is how a rejected attempt
  (an operator trying to override a balance, a mutation against a locked
  employee) stays visible for compliance review even though no transaction
  was created.

RELATIONSHIP TO THE LEDGER:
  Accepted events reference the resulting transaction ID; rejected events
  carry the rejection reason instead. The audit log is append-only and
  independently queryable - it is evidence, not logging.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUDIT EVENT
// =============================================================================

type AuditOutcome string

const (
	OutcomeAccepted AuditOutcome = "accepted"
	OutcomeRejected AuditOutcome = "rejected"
)

// AuditEvent records one mutation attempt.
type AuditEvent struct {
	ID         AuditEventID
	At         time.Time
	ActorID    string
	ActorRole  Role
	Operation  string // e.g. "submit:deduction", "edit:reversal"
	EmployeeID EmployeeID
	Category   Category
	Outcome    AuditOutcome

	// Reason holds the rejection reason for rejected events.
	Reason string

	// TransactionID references the resulting ledger entry for accepted
	// events; empty otherwise.
	TransactionID TransactionID
}

// =============================================================================
// TRAIL - Recording service over the append-only audit log
// =============================================================================

// Trail records mutation attempts into an AuditLog.
type Trail struct {
	log   AuditLog
	clock func() time.Time
}

func NewTrail(log AuditLog) *Trail {
	return &Trail{log: log, clock: time.Now}
}

// Record appends one audit event and returns its ID. Audit failures are
// returned to the caller: a mutation whose audit record cannot be written
// is treated as a storage failure, not silently accepted.
func (t *Trail) Record(ctx context.Context, event AuditEvent) (AuditEventID, error) {
	if event.ID == "" {
		event.ID = AuditEventID(uuid.NewString())
	}
	if event.At.IsZero() {
		event.At = t.clock().UTC()
	}
	if err := t.log.Append(ctx, event); err != nil {
		return "", err
	}
	return event.ID, nil
}

// Query returns audit events matching the filter, oldest first.
func (t *Trail) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return t.log.Query(ctx, filter)
}
