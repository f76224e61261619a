package idempotency

import "context"

// IStore gates inbound events so side effects run at most once per
// (eventID, provider) pair.
type IStore interface {
	IsProcessed(ctx context.Context, eventID, provider string) (bool, error)
	// Reserve atomically creates an unprocessed record or reports the existing one.
	Reserve(ctx context.Context, eventID, provider, eventType string) (ReserveResult, error)
	Complete(ctx context.Context, eventID, provider string) error
	SweepExpired(ctx context.Context) (int64, error)
}

// ReserveResult describes what Reserve found.
type ReserveResult struct {
	// AlreadyReserved is true when a previous delivery created the record.
	AlreadyReserved bool
	// Processed is true when that delivery ran to completion.
	Processed bool
	// Degraded is true when the store failed and the gate opened anyway.
	Degraded bool
}

// IsDuplicate reports whether the event must be skipped without side effects.
func (r ReserveResult) IsDuplicate() bool {
	return r.AlreadyReserved && r.Processed
}
