// Package lifecycle is the authoritative transition table for game versions.
package lifecycle

type Status string

const (
	StatusDraft        Status = "draft"
	StatusUploaded     Status = "uploaded"
	StatusQCProcessing Status = "qc_processing"
	StatusQCPassed     Status = "qc_passed"
	StatusQCFailed     Status = "qc_failed"
	StatusApproved     Status = "approved"
	StatusPublished    Status = "published"
	StatusArchived     Status = "archived"
)

var statuses = []Status{
	StatusDraft, StatusUploaded, StatusQCProcessing, StatusQCPassed,
	StatusQCFailed, StatusApproved, StatusPublished, StatusArchived,
}

func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

func (s Status) Valid() bool {
	for _, known := range statuses {
		if s == known {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionSubmit      Action = "submit"
	ActionStartReview Action = "startReview"
	ActionPass        Action = "pass"
	ActionFail        Action = "fail"
	ActionResubmit    Action = "resubmit"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionPublish     Action = "publish"
	ActionArchive     Action = "archive"
)

var actions = []Action{
	ActionSubmit, ActionStartReview, ActionPass, ActionFail, ActionResubmit,
	ActionApprove, ActionReject, ActionPublish, ActionArchive,
}

func Actions() []Action {
	return append([]Action(nil), actions...)
}

// RecordsDecision reports whether the action is a QC verdict that appends a
// QC report and needs QA evidence.
func (a Action) RecordsDecision() bool {
	return a == ActionPass || a == ActionFail
}

const (
	PermSubmit  = "games:submit"
	PermReview  = "games:review"
	PermApprove = "games:approve"
	PermPublish = "games:publish"
	PermArchive = "games:archive"
)

type rule struct {
	from       []Status
	to         Status
	permission string
}

var table = map[Action]rule{
	ActionSubmit:      {from: []Status{StatusDraft}, to: StatusUploaded, permission: PermSubmit},
	ActionStartReview: {from: []Status{StatusUploaded}, to: StatusQCProcessing, permission: PermReview},
	ActionPass:        {from: []Status{StatusQCProcessing}, to: StatusQCPassed, permission: PermReview},
	ActionFail:        {from: []Status{StatusQCProcessing}, to: StatusQCFailed, permission: PermReview},
	ActionResubmit:    {from: []Status{StatusQCFailed}, to: StatusUploaded, permission: PermSubmit},
	ActionApprove:     {from: []Status{StatusQCPassed}, to: StatusApproved, permission: PermApprove},
	ActionReject:      {from: []Status{StatusQCPassed}, to: StatusQCFailed, permission: PermApprove},
	ActionPublish:     {from: []Status{StatusApproved, StatusArchived}, to: StatusPublished, permission: PermPublish},
	ActionArchive:     {from: []Status{StatusPublished}, to: StatusArchived, permission: PermArchive},
}

// Next returns the status reached by applying a to from.
func Next(from Status, a Action) (Status, bool) {
	r, ok := table[a]
	if !ok {
		return "", false
	}
	for _, s := range r.from {
		if s == from {
			return r.to, true
		}
	}
	return "", false
}

// AllowedActions lists the actions legal from s, in table order.
func AllowedActions(s Status) []Action {
	allowed := []Action{}
	for _, a := range actions {
		if _, ok := Next(s, a); ok {
			allowed = append(allowed, a)
		}
	}
	return allowed
}

// RequiredPermission is the permission an actor must hold to apply a.
func RequiredPermission(a Action) string {
	return table[a].permission
}
