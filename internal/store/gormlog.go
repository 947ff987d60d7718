package store

import (
	"context"
	"time"

	ilog "webtap/internal/logger"

	glog "gorm.io/gorm/logger"
)

// gormLogger bridges gorm's logging interface onto ours.
type gormLogger struct {
	l     ilog.Logger
	level glog.LogLevel
}

func newGormLogger(l ilog.Logger) *gormLogger {
	return &gormLogger{l: l, level: glog.Warn}
}

func (g *gormLogger) LogMode(level glog.LogLevel) glog.Interface {
	out := *g
	out.level = level
	return &out
}

func (g *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if g.level >= glog.Info {
		g.l.Info(msg, "data", data)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if g.level >= glog.Warn {
		g.l.Warn(msg, "data", data)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if g.level >= glog.Error {
		g.l.Err(nil, msg, "data", data)
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= glog.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	switch {
	case err != nil && g.level >= glog.Error:
		g.l.Err(err, "sql failed", "sql", sql, "rows", rows)
	case elapsed > time.Second && g.level >= glog.Warn:
		g.l.Warn("slow sql", "sql", sql, "rows", rows, "timeMs", float64(elapsed.Nanoseconds())/1e6)
	}
}
