package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gameqc/decision"
	"gameqc/ledger"
	"gameqc/logger"
	"gameqc/models"
	"gameqc/qa"
)

// VersionState is what the machine needs to know about a version.
type VersionState struct {
	VersionID string
	GameID    string
	Version   string
	Status    Status
}

// Store is the persistence the machine runs against.
type Store interface {
	ReadVersionStatus(ctx context.Context, versionID string) (VersionState, error)
	// WriteVersionStatus sets next only if the stored status is still
	// expected, and reports whether it did.
	WriteVersionStatus(ctx context.Context, versionID string, expected, next Status) (bool, error)
	// AppendQCReport returns ledger.ErrAttemptConflict when the attempt
	// number is already taken.
	AppendQCReport(ctx context.Context, report *models.QCReport) (string, error)
	CountQCReports(ctx context.Context, versionID string) (int64, error)
	// WithinTx runs fn atomically; any error rolls back everything fn wrote.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type PermissionOracle interface {
	HasPermission(ctx context.Context, actorID, permission string) (bool, error)
}

// TransitionEvent describes a committed transition.
type TransitionEvent struct {
	VersionID     string    `json:"versionId"`
	GameID        string    `json:"gameId"`
	Version       string    `json:"version"`
	Action        Action    `json:"action"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	ActorID       string    `json:"actorId"`
	Note          string    `json:"note,omitempty"`
	ReportID      string    `json:"reportId,omitempty"`
	AttemptNumber int       `json:"attemptNumber,omitempty"`
	At            time.Time `json:"at"`
}

// Notifier and Auditor are fire-and-forget sinks run after commit.
type Notifier interface {
	Notify(ctx context.Context, ev TransitionEvent) error
}

type Auditor interface {
	Audit(ctx context.Context, ev TransitionEvent) error
}

// TransitionContext carries the inputs of QC verdicts.
type TransitionContext struct {
	Evidence *qa.TestResults
	Manual   *qa.ManualChecklist
	Note     string
}

type UpdatedVersion struct {
	VersionID string           `json:"versionId"`
	GameID    string           `json:"gameId"`
	Version   string           `json:"version"`
	Previous  Status           `json:"previous"`
	Status    Status           `json:"status"`
	Report    *models.QCReport `json:"report,omitempty"`
}

var errLostRace = errors.New("version status changed concurrently")

type Machine struct {
	store    Store
	perms    PermissionOracle
	notifier Notifier
	auditor  Auditor
	log      *logger.Logger
	now      func() time.Time
}

// NewMachine wires the state machine. notifier and auditor may be nil.
func NewMachine(store Store, perms PermissionOracle, notifier Notifier, auditor Auditor, log *logger.Logger) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	return &Machine{
		store:    store,
		perms:    perms,
		notifier: notifier,
		auditor:  auditor,
		log:      log.With("component", "lifecycle.Machine"),
		now:      time.Now,
	}
}

// Transition applies action to the version on behalf of actorID.
//
// Status changes use a compare-and-swap on the prior status, so of two
// concurrent transitions from the same status exactly one commits; the other
// gets an *InvalidTransitionError with the status it lost to. For pass and
// fail the QC report and the status change commit in one transaction.
func (m *Machine) Transition(ctx context.Context, versionID string, action Action, actorID string, tc TransitionContext) (*UpdatedVersion, error) {
	cur, err := m.store.ReadVersionStatus(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("read version %s: %w", versionID, err)
	}
	next, ok := Next(cur.Status, action)
	if !ok {
		return nil, invalidTransition(versionID, cur.Status, action)
	}

	perm := RequiredPermission(action)
	allowed, err := m.perms.HasPermission(ctx, actorID, perm)
	if err != nil {
		return nil, fmt.Errorf("check permission %s: %w", perm, err)
	}
	if !allowed {
		return nil, &PermissionDeniedError{ActorID: actorID, Action: action, Permission: perm}
	}

	var report *models.QCReport
	if action.RecordsDecision() {
		if tc.Evidence == nil {
			return nil, &EvidenceMissingError{VersionID: versionID, Action: action}
		}
		d := decision.Decision(action)
		if err := decision.Validate(*tc.Evidence, tc.Manual, d).Err(d); err != nil {
			return nil, err
		}
		report, err = m.newReport(cur, actorID, d, tc)
		if err != nil {
			return nil, err
		}
	}

	err = m.store.WithinTx(ctx, func(tx Store) error {
		if report != nil {
			prior, err := tx.CountQCReports(ctx, versionID)
			if err != nil {
				return fmt.Errorf("count qc reports: %w", err)
			}
			report.AttemptNumber = int(prior) + 1
			if report.ID, err = tx.AppendQCReport(ctx, report); err != nil {
				return err
			}
		}
		swapped, err := tx.WriteVersionStatus(ctx, versionID, cur.Status, next)
		if err != nil {
			return fmt.Errorf("write version status: %w", err)
		}
		if !swapped {
			return errLostRace
		}
		return nil
	})
	if errors.Is(err, errLostRace) || errors.Is(err, ledger.ErrAttemptConflict) {
		return nil, m.raceLost(ctx, versionID, action)
	}
	if err != nil {
		return nil, fmt.Errorf("%s version %s: %w", action, versionID, err)
	}

	updated := &UpdatedVersion{
		VersionID: versionID,
		GameID:    cur.GameID,
		Version:   cur.Version,
		Previous:  cur.Status,
		Status:    next,
		Report:    report,
	}
	m.emit(ctx, updated, action, actorID, tc.Note)
	return updated, nil
}

// AttemptCount returns how many QC reports the version has.
func (m *Machine) AttemptCount(ctx context.Context, versionID string) (int64, error) {
	n, err := m.store.CountQCReports(ctx, versionID)
	if err != nil {
		return 0, fmt.Errorf("count qc reports for %s: %w", versionID, err)
	}
	return n, nil
}

func (m *Machine) newReport(cur VersionState, actorID string, d decision.Decision, tc TransitionContext) (*models.QCReport, error) {
	evidence := decision.ApplyManual(*tc.Evidence, tc.Manual)
	snapshot, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("encode qa evidence: %w", err)
	}
	report := &models.QCReport{
		GameID:     cur.GameID,
		VersionID:  cur.VersionID,
		ReviewerID: actorID,
		Decision:   string(d),
		Note:       tc.Note,
		Evidence:   snapshot,
	}
	if !evidence.StartedAt.IsZero() {
		started := evidence.StartedAt
		report.TestStartedAt = &started
	}
	if !evidence.CompletedAt.IsZero() {
		completed := evidence.CompletedAt
		report.TestCompletedAt = &completed
	}
	return report, nil
}

func (m *Machine) raceLost(ctx context.Context, versionID string, action Action) error {
	fresh, err := m.store.ReadVersionStatus(ctx, versionID)
	if err != nil {
		return fmt.Errorf("re-read version %s after conflict: %w", versionID, err)
	}
	m.log.Info("transition lost race", "version_id", versionID, "action", action, "status", fresh.Status)
	return invalidTransition(versionID, fresh.Status, action)
}

func (m *Machine) emit(ctx context.Context, v *UpdatedVersion, action Action, actorID, note string) {
	ev := TransitionEvent{
		VersionID: v.VersionID,
		GameID:    v.GameID,
		Version:   v.Version,
		Action:    action,
		From:      v.Previous,
		To:        v.Status,
		ActorID:   actorID,
		Note:      note,
		At:        m.now(),
	}
	if v.Report != nil {
		ev.ReportID = v.Report.ID
		ev.AttemptNumber = v.Report.AttemptNumber
	}
	m.log.Info("version transitioned",
		"version_id", ev.VersionID,
		"action", ev.Action,
		"from", ev.From,
		"to", ev.To,
		"actor_id", ev.ActorID,
	)
	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, ev); err != nil {
			m.log.Warn("notify transition", "version_id", ev.VersionID, "error", err)
		}
	}
	if m.auditor != nil {
		if err := m.auditor.Audit(ctx, ev); err != nil {
			m.log.Warn("audit transition", "version_id", ev.VersionID, "error", err)
		}
	}
}

func invalidTransition(versionID string, current Status, action Action) *InvalidTransitionError {
	return &InvalidTransitionError{
		VersionID: versionID,
		Current:   current,
		Attempted: action,
		Allowed:   AllowedActions(current),
	}
}
