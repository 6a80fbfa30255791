package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gameqc/models"
	"gameqc/qa"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	BindAddress string `env:"BIND_ADDRESS" envDefault:"localhost"`
	LogMode     string `env:"LOG_MODE" envDefault:"dev"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"gameqc"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"gameqc123"`
	DBName     string `env:"DB_NAME" envDefault:"gameqc"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	JWTSecret string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin1234"`

	// HarnessToken authenticates runtime harness workers on /ws/runtime.
	HarnessToken string `env:"HARNESS_TOKEN" envDefault:"harness-dev-token"`
	CDNBaseURL   string `env:"CDN_BASE_URL" envDefault:"http://localhost:8080/static"`

	QA QAConfig `envPrefix:"QA_"`
}

type QAConfig struct {
	InitReadyBudget    time.Duration `env:"INIT_READY_BUDGET" envDefault:"10s"`
	QuitCompleteBudget time.Duration `env:"QUIT_COMPLETE_BUDGET" envDefault:"5s"`
	AssetLoadTimeout   time.Duration `env:"ASSET_LOAD_TIMEOUT" envDefault:"8s"`
	ResultTimeout      time.Duration `env:"RESULT_TIMEOUT" envDefault:"30s"`
	OverallTimeout     time.Duration `env:"OVERALL_TIMEOUT" envDefault:"2m"`
	MinAccuracy        float64       `env:"MIN_ACCURACY" envDefault:"0"`
	MinCompletion      float64       `env:"MIN_COMPLETION" envDefault:"0"`
	EvidenceTTL        time.Duration `env:"EVIDENCE_TTL" envDefault:"24h"`
}

// Orchestrator converts the settings into orchestrator budgets.
func (c QAConfig) Orchestrator() qa.Config {
	return qa.Config{
		InitReadyBudget:    c.InitReadyBudget,
		QuitCompleteBudget: c.QuitCompleteBudget,
		AssetLoadTimeout:   c.AssetLoadTimeout,
		ResultTimeout:      c.ResultTimeout,
		OverallTimeout:     c.OverallTimeout,
		MinAccuracy:        c.MinAccuracy,
		MinCompletion:      c.MinCompletion,
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.QA.MinAccuracy < 0 || c.QA.MinAccuracy > 1 || c.QA.MinCompletion < 0 || c.QA.MinCompletion > 1 {
		return errors.New("QA_MIN_ACCURACY and QA_MIN_COMPLETION must be within [0,1]")
	}
	if c.QA.OverallTimeout <= 0 {
		return errors.New("QA_OVERALL_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.LogMode == "dev" {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SeedAdmin creates the first admin account when none exists.
func SeedAdmin(db *gorm.DB, cfg *Config) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := models.User{
		Email:    cfg.AdminEmail,
		Name:     "Administrator",
		Password: string(hashed),
		Role:     models.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}
