package store

import (
	"context"
	"testing"
	"time"

	"gameqc/qa"
	"gameqc/testutil"
)

func TestPlayRecordsIdempotentPerAttempt(t *testing.T) {
	ctx := context.Background()
	s := NewPlayRecords(testutil.DB(t))
	scope := qa.Scope{GameID: "g1", VersionID: "v1", SessionID: "s1"}
	payload := []byte(`{"score":5,"maxScore":10,"completed":true}`)

	for i := 0; i < 3; i++ {
		if err := s.RecordAttempt(ctx, scope, qa.Attempt{ID: "a1", Payload: payload, ObservedAt: time.Now()}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	n, err := s.CountRecords(ctx, scope)
	if err != nil || n != 1 {
		t.Fatalf("count: want=1 got=%d err=%v", n, err)
	}

	records, err := s.List(ctx, "v1")
	if err != nil || len(records) != 1 {
		t.Fatalf("list: got %d err=%v", len(records), err)
	}
	if records[0].Score != 5 || records[0].MaxScore != 10 || !records[0].IsValid {
		t.Fatalf("record: got %+v", records[0])
	}
}

func TestPlayRecordsCountScope(t *testing.T) {
	ctx := context.Background()
	s := NewPlayRecords(testutil.DB(t))
	add := func(session, attempt string) {
		t.Helper()
		scope := qa.Scope{GameID: "g1", VersionID: "v1", SessionID: session}
		if err := s.RecordAttempt(ctx, scope, qa.Attempt{ID: attempt, Payload: []byte(`{}`)}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	add("s1", "a1")
	add("s1", "a2")
	add("s2", "a1")

	tests := []struct {
		scope qa.Scope
		want  int64
	}{
		{qa.Scope{GameID: "g1", VersionID: "v1", SessionID: "s1"}, 2},
		{qa.Scope{GameID: "g1", VersionID: "v1", SessionID: "s2"}, 1},
		{qa.Scope{GameID: "g1", VersionID: "v1"}, 3},
		{qa.Scope{GameID: "g1", VersionID: "other"}, 0},
	}
	for _, tt := range tests {
		got, err := s.CountRecords(ctx, tt.scope)
		if err != nil || got != tt.want {
			t.Fatalf("count %+v: want=%d got=%d err=%v", tt.scope, tt.want, got, err)
		}
	}
}

func TestPlayRecordsFeedIdempotencyChecker(t *testing.T) {
	ctx := context.Background()
	s := NewPlayRecords(testutil.DB(t))
	scope := qa.Scope{GameID: "g1", VersionID: "v1", SessionID: "s1"}
	attempts := []qa.Attempt{{ID: "a"}, {ID: "a"}}
	for _, a := range attempts {
		if err := s.RecordAttempt(ctx, scope, a); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got := qa.NewIdempotencyChecker(s).Check(ctx, scope, attempts)
	if !got.DuplicateAttemptID || got.Pass || got.BackendRecordCount != 1 {
		t.Fatalf("check: got %+v", got)
	}
}
