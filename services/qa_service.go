package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"gameqc/lifecycle"
	"gameqc/logger"
	"gameqc/models"
	"gameqc/qa"
	"gameqc/store"
)

// ErrQANotAllowed means the version is not in a state where QA may run.
var ErrQANotAllowed = errors.New("qa can only run while the version is in qc_processing")

type QARun struct {
	VersionID string    `json:"version_id"`
	SessionID string    `json:"session_id"`
	EntryURL  string    `json:"entry_url"`
	StartedAt time.Time `json:"started_at"`
}

type PlayResultRequest struct {
	GameID    string          `json:"game_id" binding:"required"`
	VersionID string          `json:"version_id" binding:"required"`
	SessionID string          `json:"session_id" binding:"required"`
	AttemptID string          `json:"attempt_id" binding:"required"`
	Result    json.RawMessage `json:"result"`
}

type QAService struct {
	db           *gorm.DB
	orchestrator *qa.Orchestrator
	records      *store.PlayRecords
	evidence     *store.EvidenceStore
	artifacts    *ArtifactStore
	perms        lifecycle.PermissionOracle
	hub          *Hub
	runTimeout   time.Duration
	log          *logger.Logger
}

func NewQAService(
	db *gorm.DB,
	orchestrator *qa.Orchestrator,
	records *store.PlayRecords,
	evidence *store.EvidenceStore,
	artifacts *ArtifactStore,
	perms lifecycle.PermissionOracle,
	hub *Hub,
	runTimeout time.Duration,
	log *logger.Logger,
) *QAService {
	if log == nil {
		log = logger.Nop()
	}
	return &QAService{
		db:           db,
		orchestrator: orchestrator,
		records:      records,
		evidence:     evidence,
		artifacts:    artifacts,
		perms:        perms,
		hub:          hub,
		runTimeout:   runTimeout,
		log:          log.With("service", "QAService"),
	}
}

// StartRun launches automated QA in the background and returns immediately.
// The outcome is stored as the version's evidence and broadcast as qa_run.
func (s *QAService) StartRun(ctx context.Context, versionID, actorID string) (*QARun, error) {
	run, v, release, err := s.prepare(ctx, versionID, actorID)
	if err != nil {
		return nil, err
	}
	go func() {
		defer release()
		bg, cancel := context.WithTimeout(context.Background(), s.runTimeout+30*time.Second)
		defer cancel()
		if _, err := s.execute(bg, v, run, actorID); err != nil {
			s.log.Error("qa run", "version_id", v.ID, "session_id", run.SessionID, "error", err)
		}
	}()
	return run, nil
}

// Run executes automated QA and waits for the results.
func (s *QAService) Run(ctx context.Context, versionID, actorID string) (*qa.TestResults, error) {
	run, v, release, err := s.prepare(ctx, versionID, actorID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.execute(ctx, v, run, actorID)
}

func (s *QAService) prepare(ctx context.Context, versionID, actorID string) (*QARun, *models.GameVersion, func(), error) {
	allowed, err := s.perms.HasPermission(ctx, actorID, lifecycle.PermReview)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, nil, nil, &lifecycle.PermissionDeniedError{ActorID: actorID, Action: "runQA", Permission: lifecycle.PermReview}
	}

	var v models.GameVersion
	err = s.db.WithContext(ctx).Where("id = ?", versionID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil, lifecycle.ErrVersionNotFound
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load version: %w", err)
	}
	if lifecycle.Status(v.Status) != lifecycle.StatusQCProcessing {
		return nil, nil, nil, fmt.Errorf("%w (status %s)", ErrQANotAllowed, v.Status)
	}

	release, err := s.evidence.AcquireRunLock(ctx, versionID, s.runTimeout+time.Minute)
	if err != nil {
		return nil, nil, nil, err
	}
	run := &QARun{
		VersionID: v.ID,
		SessionID: uuid.NewString(),
		EntryURL:  s.artifacts.EntryURL(v.GameID, v.Version, v.EntryFile),
		StartedAt: time.Now(),
	}
	return run, &v, release, nil
}

func (s *QAService) execute(ctx context.Context, v *models.GameVersion, run *QARun, actorID string) (*qa.TestResults, error) {
	s.log.Info("qa run started", "version_id", v.ID, "session_id", run.SessionID, "entry_url", run.EntryURL)
	results := s.orchestrator.Run(ctx, qa.LaunchContext{
		GameID:    v.GameID,
		VersionID: v.ID,
		UserID:    actorID,
		SessionID: run.SessionID,
		EntryURL:  run.EntryURL,
		Timestamp: run.StartedAt,
	})

	// Evidence outlives the request that started the run.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.evidence.Save(saveCtx, v.ID, results); err != nil {
		return &results, fmt.Errorf("save qa evidence: %w", err)
	}
	if s.hub != nil {
		s.hub.BroadcastToGame(v.GameID, "qa_run", gin.H{
			"version_id": v.ID,
			"session_id": run.SessionID,
			"passed":     results.Passed(),
			"results":    results,
		})
	}
	return &results, nil
}

func (s *QAService) Evidence(ctx context.Context, versionID string) (*qa.TestResults, error) {
	return s.evidence.Load(ctx, versionID)
}

// RecordPlayResult stores a result a running game posted to the backend.
// Re-posting the same attempt ID within a session is accepted and ignored.
func (s *QAService) RecordPlayResult(ctx context.Context, req *PlayResultRequest) (qa.NormalizedResult, error) {
	if strings.TrimSpace(req.AttemptID) == "" {
		return qa.NormalizedResult{}, fmt.Errorf("%w: attempt_id must not be blank", ErrInvalidInput)
	}
	scope := qa.Scope{GameID: req.GameID, VersionID: req.VersionID, SessionID: req.SessionID}
	attempt := qa.Attempt{ID: req.AttemptID, Payload: req.Result, ObservedAt: time.Now()}
	if err := s.records.RecordAttempt(ctx, scope, attempt); err != nil {
		return qa.NormalizedResult{}, err
	}
	return qa.Normalize(req.Result), nil
}

func (s *QAService) PlayRecords(ctx context.Context, versionID string) ([]models.PlayRecord, error) {
	return s.records.List(ctx, versionID)
}
