// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gameqc/models"
)

// DB returns a migrated in-memory SQLite database private to the test.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedVersion inserts a game and one version in the given status.
func SeedVersion(t *testing.T, db *gorm.DB, status string) models.GameVersion {
	t.Helper()
	game := models.Game{Slug: "game-" + uuid.NewString()[:8], Title: "Test Game", OwnerID: uuid.NewString()}
	if err := db.Create(&game).Error; err != nil {
		t.Fatalf("seed game: %v", err)
	}
	v := models.GameVersion{
		GameID:      game.ID,
		Version:     "1.0.0",
		Status:      status,
		StoragePath: "games/" + game.ID + "/1.0.0",
		EntryFile:   "index.html",
		SubmittedBy: game.OwnerID,
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed version: %v", err)
	}
	return v
}
