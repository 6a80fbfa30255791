package ledger

import (
	"context"
	"errors"
	"testing"

	"gameqc/models"
	"gameqc/testutil"
)

func report(versionID string, attempt int, decision string) *models.QCReport {
	return &models.QCReport{GameID: "g1", VersionID: versionID, ReviewerID: "qc-1", Decision: decision, AttemptNumber: attempt}
}

func TestLedgerAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	l := New(testutil.DB(t))

	for i, d := range []string{"fail", "pass"} {
		id, err := l.Append(ctx, report("v1", i+1, d))
		if err != nil {
			t.Fatalf("append %d: %v", i+1, err)
		}
		if id == "" {
			t.Fatalf("append %d: empty id", i+1)
		}
	}
	if _, err := l.Append(ctx, report("v2", 1, "pass")); err != nil {
		t.Fatalf("append other version: %v", err)
	}

	n, err := l.Count(ctx, "v1")
	if err != nil || n != 2 {
		t.Fatalf("count: want=2 got=%d err=%v", n, err)
	}
	history, err := l.History(ctx, "v1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Decision != "fail" || history[1].AttemptNumber != 2 {
		t.Fatalf("history: got %+v", history)
	}
	latest, err := l.Latest(ctx, "v1")
	if err != nil || latest.Decision != "pass" {
		t.Fatalf("latest: got %+v err=%v", latest, err)
	}
}

func TestLedgerRejectsDuplicateAttempt(t *testing.T) {
	ctx := context.Background()
	l := New(testutil.DB(t))
	if _, err := l.Append(ctx, report("v1", 1, "pass")); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err := l.Append(ctx, report("v1", 1, "fail"))
	if !errors.Is(err, ErrAttemptConflict) {
		t.Fatalf("want ErrAttemptConflict got %v", err)
	}
}

func TestLedgerReportsAreImmutable(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	l := New(db)
	r := report("v1", 1, "fail")
	if _, err := l.Append(ctx, r); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := db.Model(r).Update("decision", "pass").Error; !errors.Is(err, models.ErrReportImmutable) {
		t.Fatalf("update: want ErrReportImmutable got %v", err)
	}
	if err := db.Delete(r).Error; !errors.Is(err, models.ErrReportImmutable) {
		t.Fatalf("delete: want ErrReportImmutable got %v", err)
	}
	latest, err := l.Latest(ctx, "v1")
	if err != nil || latest.Decision != "fail" {
		t.Fatalf("report changed: %+v err=%v", latest, err)
	}
}

func TestLedgerLatestEmpty(t *testing.T) {
	_, err := New(testutil.DB(t)).Latest(context.Background(), "nothing")
	if !errors.Is(err, ErrNoReports) {
		t.Fatalf("want ErrNoReports got %v", err)
	}
}
