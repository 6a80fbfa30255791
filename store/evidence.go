package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gameqc/logger"
	"gameqc/models"
	"gameqc/qa"
)

var (
	ErrNoEvidence    = errors.New("no qa evidence recorded for version")
	ErrRunInProgress = errors.New("qa run already in progress for version")
)

const (
	evidenceKeyPrefix = "qa:evidence:"
	runLockKeyPrefix  = "qa:run:"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EvidenceStore keeps the latest QA results of each version. Redis holds a
// short-lived copy shared by every console instance; game_versions.qa_summary
// is the durable fallback.
type EvidenceStore struct {
	db    *gorm.DB
	redis *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewEvidenceStore accepts a nil redis client, in which case only the
// database is used and run locks are process-local no-ops.
func NewEvidenceStore(db *gorm.DB, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *EvidenceStore {
	if log == nil {
		log = logger.Nop()
	}
	return &EvidenceStore{db: db, redis: rdb, ttl: ttl, log: log.With("component", "store.EvidenceStore")}
}

func (s *EvidenceStore) Save(ctx context.Context, versionID string, results qa.TestResults) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode qa evidence: %w", err)
	}
	err = s.db.WithContext(ctx).
		Model(&models.GameVersion{}).
		Where("id = ?", versionID).
		UpdateColumn("qa_summary", datatypes.JSON(data)).Error
	if err != nil {
		return fmt.Errorf("store qa summary: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Set(ctx, evidenceKeyPrefix+versionID, data, s.ttl).Err(); err != nil {
			s.log.Warn("cache qa evidence", "version_id", versionID, "error", err)
		}
	}
	return nil
}

// Load returns the latest evidence, or ErrNoEvidence when QA never ran.
func (s *EvidenceStore) Load(ctx context.Context, versionID string) (*qa.TestResults, error) {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, evidenceKeyPrefix+versionID).Bytes()
		switch {
		case err == nil:
			var results qa.TestResults
			if err := json.Unmarshal(data, &results); err == nil {
				return &results, nil
			}
			s.log.Warn("decode cached qa evidence", "version_id", versionID, "error", err)
		case !errors.Is(err, redis.Nil):
			s.log.Warn("read cached qa evidence", "version_id", versionID, "error", err)
		}
	}

	var v models.GameVersion
	err := s.db.WithContext(ctx).Select("id", "qa_summary").Where("id = ?", versionID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoEvidence
	}
	if err != nil {
		return nil, fmt.Errorf("load qa summary: %w", err)
	}
	if len(v.QASummary) == 0 || string(v.QASummary) == "null" {
		return nil, ErrNoEvidence
	}
	var results qa.TestResults
	if err := json.Unmarshal(v.QASummary, &results); err != nil {
		return nil, fmt.Errorf("decode qa summary: %w", err)
	}
	return &results, nil
}

// Clear drops the evidence of a version, used when a new build is uploaded.
func (s *EvidenceStore) Clear(ctx context.Context, versionID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.GameVersion{}).
		Where("id = ?", versionID).
		UpdateColumn("qa_summary", gorm.Expr("NULL")).Error
	if err != nil {
		return fmt.Errorf("clear qa summary: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, evidenceKeyPrefix+versionID).Err(); err != nil {
			s.log.Warn("drop cached qa evidence", "version_id", versionID, "error", err)
		}
	}
	return nil
}

// AcquireRunLock ensures one QA run per version across console instances.
// The returned release function is safe to call more than once.
func (s *EvidenceStore) AcquireRunLock(ctx context.Context, versionID string, ttl time.Duration) (func(), error) {
	if s.redis == nil {
		return func() {}, nil
	}
	key := runLockKeyPrefix + versionID
	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire qa run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(ctx, s.redis, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.log.Warn("release qa run lock", "version_id", versionID, "error", err)
		}
	}, nil
}
