package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"gameqc/decision"
	"gameqc/ledger"
	"gameqc/lifecycle"
	"gameqc/models"
	"gameqc/qa"
	"gameqc/store"
	"gameqc/testutil"
)

type reviewFixture struct {
	db       *gorm.DB
	auth     *AuthService
	evidence *store.EvidenceStore
	versions *VersionService
	review   *ReviewService
	qcID     string
	devID    string
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.DB(t)
	auth := NewAuthService(db, "secret", time.Hour, nil)
	evidence := store.NewEvidenceStore(db, nil, time.Hour, nil)
	audit := store.NewAuditLog(db)
	machine := lifecycle.NewMachine(store.NewVersionStore(db), auth, NewHub(nil), audit, nil)

	f := &reviewFixture{
		db:       db,
		auth:     auth,
		evidence: evidence,
		versions: NewVersionService(db, machine, auth, evidence, nil),
		review:   NewReviewService(machine, ledger.New(db), evidence, audit, nil),
	}
	qc, err := auth.Register(ctx, &RegisterRequest{Email: "qc@example.com", Name: "QC", Password: "password1"})
	if err != nil {
		t.Fatalf("register qc: %v", err)
	}
	if _, err := auth.SetRole(ctx, qc.User.ID, models.RoleQC); err != nil {
		t.Fatalf("promote qc: %v", err)
	}
	dev, err := auth.Register(ctx, &RegisterRequest{Email: "dev@example.com", Name: "Dev", Password: "password1"})
	if err != nil {
		t.Fatalf("register dev: %v", err)
	}
	f.qcID, f.devID = qc.User.ID, dev.User.ID
	return f
}

// versionInReview uploads a build and walks it to qc_processing.
func (f *reviewFixture) versionInReview(t *testing.T) *models.GameVersion {
	t.Helper()
	ctx := context.Background()
	game, err := f.versions.CreateGame(ctx, f.devID, &CreateGameRequest{Slug: "space-run", Title: "Space Run"})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	v, err := f.versions.UploadVersion(ctx, game.ID, f.devID, &UploadVersionRequest{Version: "1.0.0", StoragePath: "games/space-run/1.0.0"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.review.Transition(ctx, v.ID, f.devID, &TransitionRequest{Action: "submit"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.review.Transition(ctx, v.ID, f.qcID, &TransitionRequest{Action: "startReview"}); err != nil {
		t.Fatalf("startReview: %v", err)
	}
	return v
}

func goodEvidence() qa.TestResults {
	return qa.TestResults{
		SessionID: "s1",
		QA01:      qa.HandshakeResult{Pass: true, Events: []qa.Event{}},
		QA02:      qa.FormatResult{Pass: true},
		QA04:      qa.IdempotencyResult{Pass: true, ConsistencyCheck: true, BackendRecordCount: 1},
	}
}

func TestDecidePassWithManualChecklist(t *testing.T) {
	ctx := context.Background()
	f := newReviewFixture(t)
	v := f.versionInReview(t)
	if err := f.evidence.Save(ctx, v.ID, goodEvidence()); err != nil {
		t.Fatalf("save evidence: %v", err)
	}

	manual := &qa.ManualChecklist{NoAutoplay: qa.Pass, NoWhiteScreen: qa.Pass, GestureOk: qa.Pass}
	updated, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: decision.Pass, Manual: manual})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if updated.Status != lifecycle.StatusQCPassed || updated.Report.AttemptNumber != 1 {
		t.Fatalf("updated: got %+v", updated)
	}

	summary, err := f.review.Attempts(ctx, v.ID)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if summary.Attempts != 1 || summary.NextAttempt != 2 || summary.Latest == nil || summary.Latest.Decision != "pass" {
		t.Fatalf("summary: got %+v", summary)
	}
	trail, err := f.review.AuditTrail(ctx, v.ID)
	if err != nil || len(trail) != 3 {
		t.Fatalf("audit trail: want 3 entries got %d err=%v", len(trail), err)
	}
}

func TestDecideRules(t *testing.T) {
	ctx := context.Background()
	f := newReviewFixture(t)
	v := f.versionInReview(t)

	if _, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: decision.Pass}); !isEvidenceMissing(err) {
		t.Fatalf("no evidence: want EvidenceMissingError got %v", err)
	}
	if _, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: decision.Fail, Note: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank note: want ErrInvalidInput got %v", err)
	}
	if _, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: "maybe"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad decision: want ErrInvalidInput got %v", err)
	}

	bad := goodEvidence()
	bad.QA04.Pass = false
	if err := f.evidence.Save(ctx, v.ID, bad); err != nil {
		t.Fatalf("save evidence: %v", err)
	}
	verdict, err := f.review.Preview(ctx, v.ID, &DecisionRequest{Decision: decision.Pass})
	if err != nil || verdict.OK || verdict.Check != decision.CheckQA04 {
		t.Fatalf("preview: got %+v err=%v", verdict, err)
	}
	var incons *decision.InconsistentDecisionError
	if _, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: decision.Pass}); !errors.As(err, &incons) {
		t.Fatalf("inconsistent pass: want InconsistentDecisionError got %v", err)
	}
	if _, err := f.review.Decide(ctx, v.ID, f.devID, &DecisionRequest{Decision: decision.Fail, Note: "dup records"}); !isPermissionDenied(err) {
		t.Fatalf("developer verdict: want PermissionDeniedError got %v", err)
	}
	if _, err := f.review.Transition(ctx, v.ID, f.qcID, &TransitionRequest{Action: "pass"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("pass via transition: want ErrInvalidInput got %v", err)
	}
	updated, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: decision.Fail, Note: "dup records"})
	if err != nil || updated.Status != lifecycle.StatusQCFailed {
		t.Fatalf("fail: got %+v err=%v", updated, err)
	}
}

func TestReuploadResubmitsAndClearsEvidence(t *testing.T) {
	ctx := context.Background()
	f := newReviewFixture(t)
	v := f.versionInReview(t)
	if err := f.evidence.Save(ctx, v.ID, goodEvidence()); err != nil {
		t.Fatalf("save evidence: %v", err)
	}

	req := &ReuploadRequest{StoragePath: "games/space-run/1.0.0-fix", EntryFile: "main.html"}
	var invalid *lifecycle.InvalidTransitionError
	if _, err := f.versions.Reupload(ctx, v.ID, f.devID, req); !errors.As(err, &invalid) {
		t.Fatalf("reupload while in review: want InvalidTransitionError got %v", err)
	}
	if _, err := f.review.Decide(ctx, v.ID, f.qcID, &DecisionRequest{Decision: decision.Fail, Note: "white screen"}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	updated, err := f.versions.Reupload(ctx, v.ID, f.devID, req)
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if updated.Status != lifecycle.StatusUploaded {
		t.Fatalf("status: want uploaded got %s", updated.Status)
	}
	got, err := f.versions.GetVersion(ctx, v.ID)
	if err != nil || got.EntryFile != "main.html" || got.StoragePath != req.StoragePath {
		t.Fatalf("build not replaced: %+v err=%v", got, err)
	}
	if _, err := f.evidence.Load(ctx, v.ID); !errors.Is(err, store.ErrNoEvidence) {
		t.Fatalf("stale evidence kept: %v", err)
	}
}

func TestUploadVersionValidation(t *testing.T) {
	ctx := context.Background()
	f := newReviewFixture(t)
	game, err := f.versions.CreateGame(ctx, f.devID, &CreateGameRequest{Slug: "Puzzle", Title: "Puzzle"})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := f.versions.CreateGame(ctx, f.devID, &CreateGameRequest{Slug: "puzzle", Title: "Again"}); !errors.Is(err, ErrGameExists) {
		t.Fatalf("duplicate slug: want ErrGameExists got %v", err)
	}
	if _, err := f.versions.UploadVersion(ctx, game.ID, f.devID, &UploadVersionRequest{Version: "one", StoragePath: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad semver: want ErrInvalidInput got %v", err)
	}
	v, err := f.versions.UploadVersion(ctx, game.ID, f.devID, &UploadVersionRequest{Version: "v2.1.0", StoragePath: "x"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if v.Version != "2.1.0" || v.Status != "draft" || v.EntryFile != "index.html" {
		t.Fatalf("version: got %+v", v)
	}
	if _, err := f.versions.UploadVersion(ctx, game.ID, f.devID, &UploadVersionRequest{Version: "2.1.0", StoragePath: "y"}); !errors.Is(err, ErrVersionExists) {
		t.Fatalf("duplicate version: want ErrVersionExists got %v", err)
	}
	if _, err := f.versions.UploadVersion(ctx, "missing", f.devID, &UploadVersionRequest{Version: "1.0.0", StoragePath: "x"}); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("unknown game: want ErrGameNotFound got %v", err)
	}
}

func isEvidenceMissing(err error) bool {
	var target *lifecycle.EvidenceMissingError
	return errors.As(err, &target)
}

func isPermissionDenied(err error) bool {
	var target *lifecycle.PermissionDeniedError
	return errors.As(err, &target)
}
