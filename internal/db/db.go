package db

import (
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/m-mizutani/goerr/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a pooled connection for driver (mysql, postgres or sqlite).
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "mysql":
		dialector = mysql.Open(dsn)
	case "postgres", "postgresql", "pgx":
		dialector = postgres.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = gormsqlite.Open(dsn)
	default:
		return nil, goerr.New("unsupported db driver", goerr.V("driver", driver))
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("driver", driver))
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get sql.DB")
	}
	if driver == "sqlite" || driver == "sqlite3" {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return gdb, nil
}

// Migrate creates or updates the tables for models.
func Migrate(gdb *gorm.DB, models ...any) error {
	if err := gdb.AutoMigrate(models...); err != nil {
		return goerr.Wrap(err, "failed to migrate")
	}
	return nil
}
