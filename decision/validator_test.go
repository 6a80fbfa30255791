package decision

import (
	"errors"
	"strings"
	"testing"

	"gameqc/qa"
)

func passingResults() qa.TestResults {
	return qa.TestResults{
		QA01: qa.HandshakeResult{Pass: true},
		QA02: qa.FormatResult{Pass: true, Accuracy: 1, Completion: 1},
		QA04: qa.IdempotencyResult{Pass: true, ConsistencyCheck: true, BackendRecordCount: 1},
	}
}

func allPass() *qa.ManualChecklist {
	return &qa.ManualChecklist{NoAutoplay: qa.Pass, NoWhiteScreen: qa.Pass, GestureOk: qa.Pass}
}

func TestValidatePass(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*qa.TestResults)
		manual    *qa.ManualChecklist
		wantOK    bool
		wantCheck string
	}{
		{name: "all evidence passes", manual: allPass(), wantOK: true},
		{name: "manual absent", wantOK: true},
		{name: "qa01 failed", mutate: func(r *qa.TestResults) { r.QA01.Pass = false }, manual: allPass(), wantCheck: CheckQA01},
		{name: "qa02 failed", mutate: func(r *qa.TestResults) { r.QA02.Pass = false }, wantCheck: CheckQA02},
		{name: "qa04 failed", mutate: func(r *qa.TestResults) { r.QA04.Pass = false }, wantCheck: CheckQA04},
		{name: "asset error does not block", mutate: func(r *qa.TestResults) { r.QA03.Auto.AssetError = true }, wantOK: true},
		{name: "manual criterion failed", manual: &qa.ManualChecklist{NoAutoplay: qa.Pass, NoWhiteScreen: qa.Fail, GestureOk: qa.Pass}, wantCheck: CheckManual},
		{name: "manual criterion unset", manual: &qa.ManualChecklist{NoAutoplay: qa.Pass, NoWhiteScreen: qa.Pass}, wantCheck: CheckManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := passingResults()
			if tt.mutate != nil {
				tt.mutate(&results)
			}
			got := Validate(results, tt.manual, Pass)
			if got.OK != tt.wantOK {
				t.Fatalf("ok: want=%v got=%v (%s)", tt.wantOK, got.OK, got.Reason)
			}
			if got.Check != tt.wantCheck {
				t.Fatalf("check: want=%q got=%q", tt.wantCheck, got.Check)
			}
			if !got.OK && got.Reason == "" {
				t.Fatalf("negative verdict needs a reason")
			}
		})
	}
}

func TestValidateQA04Reason(t *testing.T) {
	results := passingResults()
	results.QA04.Pass = false
	got := Validate(results, nil, Pass)
	if got.Reason != "Cannot pass QC when QA-04 idempotency test failed" {
		t.Fatalf("reason: got=%q", got.Reason)
	}
}

func TestValidateFailedHandshakeBlocksPassForAnyManual(t *testing.T) {
	values := []qa.TriState{qa.Unset, qa.Pass, qa.Fail}
	results := passingResults()
	results.QA01.Pass = false
	if Validate(results, nil, Pass).OK {
		t.Fatalf("pass with failed qa01 and no manual must be rejected")
	}
	for _, a := range values {
		for _, b := range values {
			for _, c := range values {
				manual := &qa.ManualChecklist{NoAutoplay: a, NoWhiteScreen: b, GestureOk: c}
				if Validate(results, manual, Pass).OK {
					t.Fatalf("pass accepted with failed qa01 and manual %+v", manual)
				}
			}
		}
	}
}

func TestValidateFailAlwaysOK(t *testing.T) {
	var empty qa.TestResults
	for _, results := range []qa.TestResults{empty, passingResults()} {
		for _, manual := range []*qa.ManualChecklist{nil, allPass(), {NoAutoplay: qa.Fail}} {
			if v := Validate(results, manual, Fail); !v.OK {
				t.Fatalf("fail decision rejected: %s", v.Reason)
			}
		}
	}
}

func TestValidateUnknownDecision(t *testing.T) {
	v := Validate(passingResults(), nil, Decision("maybe"))
	if v.OK || v.Check != CheckDecision {
		t.Fatalf("unknown decision: got %+v", v)
	}
}

func TestVerdictErr(t *testing.T) {
	if err := (Verdict{OK: true}).Err(Pass); err != nil {
		t.Fatalf("positive verdict: want nil got %v", err)
	}
	results := passingResults()
	results.QA02.Pass = false
	err := Validate(results, nil, Pass).Err(Pass)
	var incons *InconsistentDecisionError
	if !errors.As(err, &incons) {
		t.Fatalf("want *InconsistentDecisionError got %T", err)
	}
	if incons.Check != CheckQA02 || !strings.Contains(err.Error(), "QA-02") {
		t.Fatalf("unexpected error %+v", incons)
	}
}

func TestApplyManual(t *testing.T) {
	results := passingResults()
	got := ApplyManual(results, allPass())
	if got.QA03.Manual.GestureOk != qa.Pass {
		t.Fatalf("manual not applied: %+v", got.QA03.Manual)
	}
	if results.QA03.Manual.GestureOk != qa.Unset {
		t.Fatalf("input must not be mutated")
	}
	if ApplyManual(results, nil).QA03.Manual != (qa.ManualChecklist{}) {
		t.Fatalf("nil manual must leave checklist unset")
	}
}
