// Package decision gates human QC verdicts against automated QA evidence.
package decision

import (
	"fmt"

	"gameqc/qa"
)

type Decision string

const (
	Pass Decision = "pass"
	Fail Decision = "fail"
)

func (d Decision) Valid() bool {
	return d == Pass || d == Fail
}

// Check names the piece of evidence that blocked a decision.
const (
	CheckDecision = "decision"
	CheckQA01     = "qa01"
	CheckQA02     = "qa02"
	CheckQA04     = "qa04"
	CheckManual   = "manual"
)

// Verdict is the outcome of Validate. Reason and Check are empty when OK.
type Verdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Check  string `json:"check,omitempty"`
}

// Err returns nil for a positive verdict and an *InconsistentDecisionError otherwise.
func (v Verdict) Err(d Decision) error {
	if v.OK {
		return nil
	}
	return &InconsistentDecisionError{Decision: d, Check: v.Check, Reason: v.Reason}
}

// InconsistentDecisionError reports a decision the evidence does not support.
type InconsistentDecisionError struct {
	Decision Decision
	Check    string
	Reason   string
}

func (e *InconsistentDecisionError) Error() string {
	return e.Reason
}

// Validate decides whether d is consistent with the evidence. A fail is always
// consistent. A pass needs QA-01, QA-02 and QA-04 to pass and, when a manual
// checklist is supplied, every criterion in it marked Pass.
//
// QA-03's automatic asset flag is informational and never blocks a pass.
func Validate(results qa.TestResults, manual *qa.ManualChecklist, d Decision) Verdict {
	switch d {
	case Fail:
		return Verdict{OK: true}
	case Pass:
	default:
		return reject(CheckDecision, fmt.Sprintf("Unknown QC decision %q", string(d)))
	}

	if !results.QA01.Pass {
		return reject(CheckQA01, "Cannot pass QC when QA-01 handshake test failed")
	}
	if !results.QA02.Pass {
		return reject(CheckQA02, "Cannot pass QC when QA-02 result format test failed")
	}
	if !results.QA04.Pass {
		return reject(CheckQA04, "Cannot pass QC when QA-04 idempotency test failed")
	}
	if manual != nil {
		for _, c := range manual.Criteria() {
			switch c.Value {
			case qa.Pass:
				continue
			case qa.Fail:
				return reject(CheckManual, fmt.Sprintf("Cannot pass QC when manual check %s failed", c.Name))
			default:
				return reject(CheckManual, fmt.Sprintf("Cannot pass QC while manual check %s is not reviewed", c.Name))
			}
		}
	}
	return Verdict{OK: true}
}

// ApplyManual returns a copy of results carrying the reviewer's checklist.
// It is the only way human verdicts reach QA03.Manual.
func ApplyManual(results qa.TestResults, manual *qa.ManualChecklist) qa.TestResults {
	if manual != nil {
		results.QA03.Manual = *manual
	}
	return results
}

func reject(check, reason string) Verdict {
	return Verdict{Reason: reason, Check: check}
}
