package db_test

import (
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/db"
)

type probe struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string
}

func TestConnect_SQLite(t *testing.T) {
	gdb, err := db.Connect("sqlite", filepath.Join(t.TempDir(), "probe.db"))
	gt.NoError(t, err).Required()
	gt.NoError(t, db.Migrate(gdb, &probe{})).Required()

	gt.NoError(t, gdb.Create(&probe{Name: "a"}).Error).Required()
	var n int64
	gt.NoError(t, gdb.Model(&probe{}).Count(&n).Error).Required()
	gt.Value(t, n).Equal(int64(1))
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := db.Connect("oracle", "x")
	gt.Error(t, err)
}
