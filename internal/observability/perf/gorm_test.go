package perf

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type probeRow struct {
	ID   uint
	Name string
}

func TestGormPluginRecordsDBTime(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Use(GormPlugin{}); err != nil {
		t.Fatalf("use plugin: %v", err)
	}
	if err := db.AutoMigrate(&probeRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tr := Start()
	ctx := WithTracer(context.Background(), tr)
	if err := db.WithContext(ctx).Create(&probeRow{Name: "a"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var rows []probeRow
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}

	if s := tr.Finish(nil); s.DBMs == nil {
		t.Fatalf("expected db time to be recorded")
	}
	if s := tr.Finish(nil); s.ExternalMs != nil {
		t.Fatalf("gorm statements must not count as external")
	}

	untraced := Start()
	if err := db.WithContext(context.Background()).Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if untraced.Finish(nil).DBMs != nil {
		t.Fatalf("statements without a tracer must not be attributed")
	}
}
