package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gameqc/decision"
	"gameqc/ledger"
	"gameqc/lifecycle"
	"gameqc/logger"
	"gameqc/models"
	"gameqc/qa"
	"gameqc/store"
)

type DecisionRequest struct {
	Decision decision.Decision   `json:"decision" binding:"required"`
	Note     string              `json:"note"`
	Manual   *qa.ManualChecklist `json:"manual"`
}

type TransitionRequest struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

type AttemptSummary struct {
	VersionID   string           `json:"version_id"`
	Attempts    int64            `json:"attempts"`
	NextAttempt int64            `json:"next_attempt"`
	Latest      *models.QCReport `json:"latest,omitempty"`
}

// ReviewService drives QC verdicts and lifecycle transitions.
type ReviewService struct {
	machine  *lifecycle.Machine
	ledger   *ledger.Ledger
	evidence *store.EvidenceStore
	audit    *store.AuditLog
	log      *logger.Logger
}

func NewReviewService(machine *lifecycle.Machine, ledger *ledger.Ledger, evidence *store.EvidenceStore, audit *store.AuditLog, log *logger.Logger) *ReviewService {
	if log == nil {
		log = logger.Nop()
	}
	return &ReviewService{
		machine:  machine,
		ledger:   ledger,
		evidence: evidence,
		audit:    audit,
		log:      log.With("service", "ReviewService"),
	}
}

// Decide records a pass or fail verdict against the version's latest evidence.
func (s *ReviewService) Decide(ctx context.Context, versionID, actorID string, req *DecisionRequest) (*lifecycle.UpdatedVersion, error) {
	if !req.Decision.Valid() {
		return nil, fmt.Errorf("%w: decision must be pass or fail", ErrInvalidInput)
	}
	if req.Decision == decision.Fail && strings.TrimSpace(req.Note) == "" {
		return nil, fmt.Errorf("%w: a note is required to fail a version", ErrInvalidInput)
	}
	evidence, err := s.loadEvidence(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return s.machine.Transition(ctx, versionID, lifecycle.Action(req.Decision), actorID, lifecycle.TransitionContext{
		Evidence: evidence,
		Manual:   req.Manual,
		Note:     strings.TrimSpace(req.Note),
	})
}

// Preview validates a verdict without recording it.
func (s *ReviewService) Preview(ctx context.Context, versionID string, req *DecisionRequest) (decision.Verdict, error) {
	evidence, err := s.loadEvidence(ctx, versionID)
	if err != nil {
		return decision.Verdict{}, err
	}
	if evidence == nil {
		return decision.Verdict{}, &lifecycle.EvidenceMissingError{VersionID: versionID, Action: lifecycle.Action(req.Decision)}
	}
	return decision.Validate(*evidence, req.Manual, req.Decision), nil
}

// Transition applies a non-verdict action such as submit or publish.
func (s *ReviewService) Transition(ctx context.Context, versionID, actorID string, req *TransitionRequest) (*lifecycle.UpdatedVersion, error) {
	action := lifecycle.Action(req.Action)
	if !knownAction(action) {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, req.Action)
	}
	if action.RecordsDecision() {
		return nil, fmt.Errorf("%w: %s is recorded through the decision endpoint", ErrInvalidInput, action)
	}
	return s.machine.Transition(ctx, versionID, action, actorID, lifecycle.TransitionContext{Note: strings.TrimSpace(req.Note)})
}

func (s *ReviewService) History(ctx context.Context, versionID string) ([]models.QCReport, error) {
	return s.ledger.History(ctx, versionID)
}

func (s *ReviewService) Attempts(ctx context.Context, versionID string) (*AttemptSummary, error) {
	n, err := s.machine.AttemptCount(ctx, versionID)
	if err != nil {
		return nil, err
	}
	summary := &AttemptSummary{VersionID: versionID, Attempts: n, NextAttempt: n + 1}
	if n > 0 {
		latest, err := s.ledger.Latest(ctx, versionID)
		if err != nil && !errors.Is(err, ledger.ErrNoReports) {
			return nil, err
		}
		summary.Latest = latest
	}
	return summary, nil
}

func (s *ReviewService) AuditTrail(ctx context.Context, versionID string) ([]models.AuditEntry, error) {
	return s.audit.List(ctx, versionID)
}

func (s *ReviewService) loadEvidence(ctx context.Context, versionID string) (*qa.TestResults, error) {
	evidence, err := s.evidence.Load(ctx, versionID)
	if errors.Is(err, store.ErrNoEvidence) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return evidence, nil
}

func knownAction(a lifecycle.Action) bool {
	for _, known := range lifecycle.Actions() {
		if a == known {
			return true
		}
	}
	return false
}
