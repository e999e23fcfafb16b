package perf

import (
	"errors"

	"gorm.io/gorm"
)

const gormSpanKey = "perf:span_end"

// GormPlugin records every statement executed with a tracer-bearing context
// as db time.
type GormPlugin struct{}

func (GormPlugin) Name() string { return "perf:spans" }

func (GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("perf:before_create", beforeStatement),
		cb.Create().After("gorm:create").Register("perf:after_create", afterStatement),
		cb.Query().Before("gorm:query").Register("perf:before_query", beforeStatement),
		cb.Query().After("gorm:query").Register("perf:after_query", afterStatement),
		cb.Update().Before("gorm:update").Register("perf:before_update", beforeStatement),
		cb.Update().After("gorm:update").Register("perf:after_update", afterStatement),
		cb.Delete().Before("gorm:delete").Register("perf:before_delete", beforeStatement),
		cb.Delete().After("gorm:delete").Register("perf:after_delete", afterStatement),
		cb.Row().Before("gorm:row").Register("perf:before_row", beforeStatement),
		cb.Row().After("gorm:row").Register("perf:after_row", afterStatement),
		cb.Raw().Before("gorm:raw").Register("perf:before_raw", beforeStatement),
		cb.Raw().After("gorm:raw").Register("perf:after_raw", afterStatement),
	)
}

func beforeStatement(db *gorm.DB) {
	if db.Statement == nil {
		return
	}
	t := FromContext(db.Statement.Context)
	if t == nil {
		return
	}
	db.InstanceSet(gormSpanKey, t.Span(DB))
}

func afterStatement(db *gorm.DB) {
	v, ok := db.InstanceGet(gormSpanKey)
	if !ok {
		return
	}
	if end, ok := v.(func()); ok {
		end()
	}
}
