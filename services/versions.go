package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
	"gorm.io/gorm"

	"gameqc/lifecycle"
	"gameqc/logger"
	"gameqc/models"
	"gameqc/store"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrGameNotFound  = errors.New("game not found")
	ErrGameExists    = errors.New("game slug already taken")
	ErrVersionExists = errors.New("version already uploaded for this game")
)

type CreateGameRequest struct {
	Slug        string `json:"slug" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// UploadVersionRequest describes a build already placed in artifact storage.
type UploadVersionRequest struct {
	Version     string `json:"version" binding:"required"`
	BuildSize   int64  `json:"build_size" binding:"min=0"`
	StoragePath string `json:"storage_path" binding:"required"`
	EntryFile   string `json:"entry_file"`
}

type ReuploadRequest struct {
	BuildSize   int64  `json:"build_size" binding:"min=0"`
	StoragePath string `json:"storage_path" binding:"required"`
	EntryFile   string `json:"entry_file"`
	Note        string `json:"note"`
}

type VersionService struct {
	db       *gorm.DB
	machine  *lifecycle.Machine
	perms    lifecycle.PermissionOracle
	evidence *store.EvidenceStore
	log      *logger.Logger
}

func NewVersionService(db *gorm.DB, machine *lifecycle.Machine, perms lifecycle.PermissionOracle, evidence *store.EvidenceStore, log *logger.Logger) *VersionService {
	if log == nil {
		log = logger.Nop()
	}
	return &VersionService{
		db:       db,
		machine:  machine,
		perms:    perms,
		evidence: evidence,
		log:      log.With("service", "VersionService"),
	}
}

func (s *VersionService) CreateGame(ctx context.Context, ownerID string, req *CreateGameRequest) (*models.Game, error) {
	game := models.Game{
		Slug:        strings.ToLower(strings.TrimSpace(req.Slug)),
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     ownerID,
	}
	if game.Slug == "" {
		return nil, fmt.Errorf("%w: slug must not be blank", ErrInvalidInput)
	}
	if err := s.db.WithContext(ctx).Create(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrGameExists
		}
		return nil, fmt.Errorf("create game: %w", err)
	}
	return &game, nil
}

func (s *VersionService) ListGames(ctx context.Context) ([]models.Game, error) {
	var games []models.Game
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&games).Error; err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (s *VersionService) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).Where("id = ?", gameID).First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	return &game, nil
}

// UploadVersion registers a new build in draft.
func (s *VersionService) UploadVersion(ctx context.Context, gameID, submitterID string, req *UploadVersionRequest) (*models.GameVersion, error) {
	if !semver.IsValid("v" + strings.TrimPrefix(req.Version, "v")) {
		return nil, fmt.Errorf("%w: version %q is not a semantic version", ErrInvalidInput, req.Version)
	}
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	v := models.GameVersion{
		GameID:      gameID,
		Version:     strings.TrimPrefix(req.Version, "v"),
		Status:      string(lifecycle.StatusDraft),
		BuildSize:   req.BuildSize,
		StoragePath: req.StoragePath,
		EntryFile:   entryOrDefault(req.EntryFile),
		SubmittedBy: submitterID,
	}
	if err := s.db.WithContext(ctx).Create(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrVersionExists
		}
		return nil, fmt.Errorf("create version: %w", err)
	}
	s.log.Info("version uploaded", "game_id", gameID, "version_id", v.ID, "version", v.Version)
	return &v, nil
}

func (s *VersionService) ListVersions(ctx context.Context, gameID string) ([]models.GameVersion, error) {
	var versions []models.GameVersion
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("created_at DESC").Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

func (s *VersionService) GetVersion(ctx context.Context, versionID string) (*models.GameVersion, error) {
	var v models.GameVersion
	err := s.db.WithContext(ctx).Where("id = ?", versionID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lifecycle.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	return &v, nil
}

// Reupload replaces the build of a failed version and resubmits it.
func (s *VersionService) Reupload(ctx context.Context, versionID, actorID string, req *ReuploadRequest) (*lifecycle.UpdatedVersion, error) {
	allowed, err := s.perms.HasPermission(ctx, actorID, lifecycle.PermSubmit)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, &lifecycle.PermissionDeniedError{ActorID: actorID, Action: lifecycle.ActionResubmit, Permission: lifecycle.PermSubmit}
	}

	res := s.db.WithContext(ctx).
		Model(&models.GameVersion{}).
		Where("id = ? AND status = ?", versionID, string(lifecycle.StatusQCFailed)).
		Updates(map[string]interface{}{
			"build_size":   req.BuildSize,
			"storage_path": req.StoragePath,
			"entry_file":   entryOrDefault(req.EntryFile),
			"submitted_by": actorID,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("replace build: %w", res.Error)
	}
	// With no row replaced the version is missing or not failed; the machine
	// reports which.
	if res.RowsAffected > 0 && s.evidence != nil {
		if err := s.evidence.Clear(ctx, versionID); err != nil {
			s.log.Warn("clear stale qa evidence", "version_id", versionID, "error", err)
		}
	}
	return s.machine.Transition(ctx, versionID, lifecycle.ActionResubmit, actorID, lifecycle.TransitionContext{Note: req.Note})
}

func entryOrDefault(entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "index.html"
	}
	return entry
}
