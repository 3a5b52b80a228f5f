package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	sqliteScheme      = "sqlite://"
	postgresScheme    = "postgres://"
	postgresAltScheme = "postgresql://"
	postgresMaxIdle   = 10
	postgresMaxOpen   = 50
)

// Open connects to the database named by url and performs schema migrations.
// "postgres://" and "postgresql://" select PostgreSQL; "sqlite://" or a bare path selects SQLite.
func Open(url string, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, driver, err := dialectorFor(url)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(postgresMaxIdle)
		sqlDB.SetMaxOpenConns(postgresMaxOpen)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", driver))
	return db, nil
}

// Migrate creates or updates every table and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	models := append(confessions.Schema(), &users.Member{}, &migrationRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func dialectorFor(url string) (gorm.Dialector, string, error) {
	trimmed := strings.TrimSpace(url)
	switch {
	case trimmed == "":
		return nil, "", fmt.Errorf("database url is required")
	case strings.HasPrefix(trimmed, postgresScheme), strings.HasPrefix(trimmed, postgresAltScheme):
		return postgres.Open(trimmed), "postgres", nil
	case strings.HasPrefix(trimmed, sqliteScheme):
		path := strings.TrimPrefix(trimmed, sqliteScheme)
		if path == "" {
			return nil, "", fmt.Errorf("sqlite database path is required")
		}
		return sqlite.Open(path), "sqlite", nil
	case strings.Contains(trimmed, "://"):
		return nil, "", fmt.Errorf("unsupported database url scheme in %q", redact(trimmed))
	default:
		return sqlite.Open(trimmed), "sqlite", nil
	}
}

// redact drops credentials before a url reaches an error message.
func redact(url string) string {
	scheme, rest, found := strings.Cut(url, "://")
	if !found {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}
