package audit

import "time"

// Outcome classifies how an audited action ended.
type Outcome string

const (
	// OutcomeSuccess records a completed action.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure records a rejected action (bad credentials, policy).
	OutcomeFailure Outcome = "failure"
	// OutcomeError records an unexpected/internal failure.
	OutcomeError Outcome = "error"
	// OutcomeConflict records a duplicate/constraint rejection.
	OutcomeConflict Outcome = "conflict"
	// OutcomeUnauthorized records a missing/invalid/replayed credential.
	OutcomeUnauthorized Outcome = "unauthorized"
)

// Event is one append-only audit record. Rows are never updated.
// Empty actor/resource fields are stored as NULL by the sink.
type Event struct {
	Action     string
	ActorID    string
	ActorEmail string
	Resource   string
	ResourceID string
	Outcome    Outcome
	Detail     string
	Metadata   map[string]string
	CreatedAt  time.Time
}
