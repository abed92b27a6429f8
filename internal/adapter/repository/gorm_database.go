package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"schoolchat/internal/domain/entity"
	apperrors "schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
)

var (
	ErrUnknownDriver   = errors.New("unknown storage driver")
	ErrCreateDatabase  = errors.New("cannot create a database")
	ErrMigrationFailed = errors.New("failed to migrate")
)

// OpenDatabase opens a GORM connection for sqlite, postgres or mysql.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(sqliteDSN(dsn))
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(logger.WarnLogger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		logger.Error("Cannot open GORM database: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrCreateDatabase, err)
	}

	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreateDatabase, err)
		}
		// SQLite allows a single writer; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// newGormLogger reports slow queries and real failures. Missing rows are an
// expected outcome of lookups here and stay quiet.
func newGormLogger(w gormlogger.Writer) gormlogger.Interface {
	return gormlogger.New(w, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_foreign_keys=on&_busy_timeout=5000"
}

func Migrate(db *gorm.DB) error {
	logger.Info("Going to start database migrations")

	models := []interface{}{
		&entity.User{},
		&entity.ProfileRecord{},
		&entity.ClassAssignment{},
		&entity.Room{},
		&entity.Participant{},
		&entity.Message{},
		&entity.ReadMarker{},
		&entity.Notification{},
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("Migration of %T failed: %v", model, err)
			return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
		}
	}

	return nil
}

// translateError maps driver errors onto AppErrors.
func translateError(err error, resource, action string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Internal(action, err)
}
