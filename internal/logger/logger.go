// Package logger 构造 kforge 使用的 zap 日志记录器
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvDebug 为 1/true/on 时打开调试日志
	EnvDebug = "KFORGE_DEBUG"
	// EnvLogFile 日志文件路径，为空时只输出到 stderr
	EnvLogFile = "KFORGE_LOG_FILE"
)

// TimeLayout 日志时间格式
const TimeLayout = "2006-01-02 15:04:05"

// Options 日志选项
type Options struct {
	Level string    // debug/info/warn/error，为空时为 warn
	File  string    // 额外写入的日志文件
	Err   io.Writer // 控制台输出，默认 os.Stderr
	Fs    afero.Fs  // 日志文件所在的文件系统，默认 afero.NewOsFs()
}

// DebugEnabled 检查环境变量是否打开了调试日志
func DebugEnabled() bool {
	switch strings.ToLower(os.Getenv(EnvDebug)) {
	case "1", "true", "on":
		return true
	}
	return false
}

// ParseLevel 解析日志级别
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.WarnLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return l, errors.Wrapf(err, "log level %q", s)
	}
	return l, nil
}

// New 按级别创建日志记录器。环境变量优先于 opts：
// KFORGE_DEBUG 把级别降到 debug，KFORGE_LOG_FILE 指定日志文件
func New(opts Options) (*zap.Logger, func(), error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if DebugEnabled() {
		level = zapcore.DebugLevel
	}
	if f := os.Getenv(EnvLogFile); f != "" {
		opts.File = f
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder(), zapcore.AddSync(opts.Err), level),
	}
	closeFn := func() {}
	if opts.File != "" {
		f, err := opts.Fs.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open log file %s", opts.File)
		}
		// 文件记录所有调试信息
		cores = append(cores, zapcore.NewCore(encoder(), zapcore.AddSync(f), zapcore.DebugLevel))
		closeFn = func() { _ = f.Close() }
	}

	log := zap.New(zapcore.NewTee(cores...)).Named("kforge")
	return log, func() {
		_ = log.Sync()
		closeFn()
	}, nil
}

// NewWriter 写到 w 的日志记录器，测试中用于检查日志内容
func NewWriter(w io.Writer, level zapcore.Level) *zap.Logger {
	return zap.New(zapcore.NewCore(encoder(), zapcore.AddSync(w), level))
}

// Nop 不输出任何内容
func Nop() *zap.Logger { return zap.NewNop() }

// encoder [时间] [级别] 名称: 消息 字段
func encoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(TimeLayout)
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}
