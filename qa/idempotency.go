package qa

import (
	"context"
	"fmt"
	"time"
)

// Scope identifies the records an idempotency check counts.
// SessionID narrows the count to a single orchestration run; empty means
// every record of the version.
type Scope struct {
	GameID    string
	VersionID string
	SessionID string
}

// Attempt is one submission of a game result.
type Attempt struct {
	ID         string    `json:"id"`
	Payload    []byte    `json:"-"`
	ObservedAt time.Time `json:"observedAt"`
}

// RecordCounter reports how many persisted result records exist for a scope.
type RecordCounter interface {
	CountRecords(ctx context.Context, scope Scope) (int64, error)
}

type IdempotencyChecker struct {
	records RecordCounter
}

func NewIdempotencyChecker(records RecordCounter) *IdempotencyChecker {
	return &IdempotencyChecker{records: records}
}

// Check reconciles the attempts of a submission burst against the record
// store. Exactly one canonical record and no reused attempt ID passes.
// Store failures fail closed and are reported in Details.
func (c *IdempotencyChecker) Check(ctx context.Context, scope Scope, attempts []Attempt) IdempotencyResult {
	out := IdempotencyResult{DuplicateAttemptID: hasDuplicateIDs(attempts)}

	if c.records == nil {
		out.Details = "record store not configured"
		return out
	}
	count, err := c.records.CountRecords(ctx, scope)
	if err != nil {
		out.Details = fmt.Sprintf("record store unavailable: %v", err)
		return out
	}
	out.BackendRecordCount = count
	out.ConsistencyCheck = count == 1 && !out.DuplicateAttemptID
	out.Pass = out.ConsistencyCheck

	switch {
	case out.DuplicateAttemptID:
		out.Details = "duplicate attempt id submitted"
	case count == 0:
		out.Details = "no result record persisted"
	case count > 1:
		out.Details = fmt.Sprintf("expected 1 result record, found %d", count)
	}
	return out
}

func hasDuplicateIDs(attempts []Attempt) bool {
	seen := make(map[string]struct{}, len(attempts))
	for _, a := range attempts {
		if _, ok := seen[a.ID]; ok {
			return true
		}
		seen[a.ID] = struct{}{}
	}
	return false
}
