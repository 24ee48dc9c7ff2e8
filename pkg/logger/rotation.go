package logger

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultRotationTime = 24 * time.Hour
	defaultRetention    = 7 * 24 * time.Hour
	defaultPattern      = ".%Y%m%d"
)

// NewRotationWriter 按 cfg.Type 返回文件 writer，未知类型按大小轮换
func NewRotationWriter(cfg *RotationConfig, path string) (io.Writer, error) {
	if cfg.Type == RotationByTime {
		return timeRotation(cfg, path)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}

func timeRotation(cfg *RotationConfig, path string) (io.Writer, error) {
	every, err := parseDuration(cfg.RotationTime, defaultRotationTime)
	if err != nil {
		return nil, errors.Wrap(err, "rotation_time")
	}
	keep, err := parseDuration(cfg.MaxAgeTime, defaultRetention)
	if err != nil {
		return nil, errors.Wrap(err, "max_age_time")
	}
	pattern := cfg.RotationPattern
	if pattern == "" {
		pattern = defaultPattern
	}
	// path 始终指向当前文件
	return rotatelogs.New(path+pattern,
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(every),
		rotatelogs.WithMaxAge(keep),
	)
}

// parseDuration 空串取默认值
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.Newf("duration must be positive, got %s", s)
	}
	return d, nil
}
