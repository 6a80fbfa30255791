package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gameqc/decision"
	"gameqc/lifecycle"
	"gameqc/qa"
	"gameqc/store"
	"gameqc/testutil"
)

func newQAService(t *testing.T, f *reviewFixture) *QAService {
	t.Helper()
	bridge := NewRuntimeBridge(time.Second, nil)
	startHarness(t, bridge, healthyGame)

	records := store.NewPlayRecords(f.db)
	cfg := qa.DefaultConfig()
	cfg.ResultTimeout = 2 * time.Second
	orchestrator := qa.NewOrchestrator(bridge, records, qa.NewIdempotencyChecker(records), cfg, nil)
	return NewQAService(f.db, orchestrator, records, f.evidence, NewArtifactStore("https://cdn.test"), f.auth, NewHub(nil), 10*time.Second, nil)
}

func TestQARunStoresEvidenceForDecision(t *testing.T) {
	ctx := context.Background()
	f := newReviewFixture(t)
	v := f.versionInReview(t)
	svc := newQAService(t, f)

	results, err := svc.Run(ctx, v.ID, f.qcID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !results.Passed() {
		t.Fatalf("want passing run, got %+v", results)
	}

	stored, err := svc.Evidence(ctx, v.ID)
	if err != nil {
		t.Fatalf("evidence: %v", err)
	}
	if stored.SessionID != results.SessionID || stored.QA04.BackendRecordCount != 1 {
		t.Fatalf("stored evidence: got %+v", stored)
	}
	records, err := svc.PlayRecords(ctx, v.ID)
	if err != nil || len(records) != 1 || records[0].AttemptID != "a1" {
		t.Fatalf("play records: got %+v err=%v", records, err)
	}

	updated, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: decision.Pass})
	if err != nil || updated.Status != lifecycle.StatusQCPassed {
		t.Fatalf("decide: got %+v err=%v", updated, err)
	}
}

func TestQARunPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newReviewFixture(t)
	svc := newQAService(t, f)

	uploaded := testutil.SeedVersion(t, f.db, string(lifecycle.StatusUploaded))
	if _, err := svc.Run(ctx, uploaded.ID, f.qcID); !errors.Is(err, ErrQANotAllowed) {
		t.Fatalf("uploaded version: want ErrQANotAllowed got %v", err)
	}
	if _, err := svc.Run(ctx, "missing", f.qcID); !errors.Is(err, lifecycle.ErrVersionNotFound) {
		t.Fatalf("missing version: want ErrVersionNotFound got %v", err)
	}
	if _, err := svc.StartRun(ctx, uploaded.ID, f.devID); !isPermissionDenied(err) {
		t.Fatalf("developer: want PermissionDeniedError got %v", err)
	}
}

func TestRecordPlayResult(t *testing.T) {
	ctx := context.Background()
	f := newReviewFixture(t)
	svc := newQAService(t, f)

	req := &PlayResultRequest{GameID: "g1", VersionID: "v1", SessionID: "s1", AttemptID: "a1", Result: []byte(`{"score":5,"maxScore":10,"completed":false}`)}
	for i := 0; i < 2; i++ {
		norm, err := svc.RecordPlayResult(ctx, req)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if norm.Accuracy != 0.5 || norm.Completion != 0 {
			t.Fatalf("normalized: got %+v", norm)
		}
	}
	records, err := svc.PlayRecords(ctx, "v1")
	if err != nil || len(records) != 1 {
		t.Fatalf("records: want 1 got %d err=%v", len(records), err)
	}

	req.AttemptID = " "
	if _, err := svc.RecordPlayResult(ctx, req); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank attempt: want ErrInvalidInput got %v", err)
	}
}
