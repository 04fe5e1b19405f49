package utils

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志器
// 未调用 InitLogger 时为零值, 不输出任何内容
var Logger zerolog.Logger

const (
	// MainLogFile 主日志文件名 (所有级别)
	MainLogFile = "page_capture.log"
	// ErrorLogFile 错误日志文件名 (error及以上)
	ErrorLogFile = "page_capture_error.log"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string // trace, debug, info, warn, error, fatal, panic
	LogDir     string
	MaxSize    int  // 单个日志文件最大大小(MB)
	MaxBackups int  // 保留的旧日志文件数量
	MaxAge     int  // 保留天数
	Compress   bool // 压缩旧日志
	Quiet      bool // 不输出到控制台
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

var (
	logFilesMu sync.Mutex
	logFiles   []*lumberjack.Logger
)

// InitLogger 初始化日志系统
// 重复调用会关闭上一次打开的日志文件
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	mainFile := rotatingFile(config, MainLogFile)
	errorFile := rotatingFile(config, ErrorLogFile)

	writers := []io.Writer{
		mainFile,
		&FilteredWriter{Writer: errorFile, MinLevel: zerolog.ErrorLevel},
	}
	if !config.Quiet {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	CloseLogger()
	logFilesMu.Lock()
	logFiles = []*lumberjack.Logger{mainFile, errorFile}
	logFilesMu.Unlock()

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = Logger

	Logger.Info().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")

	return nil
}

func rotatingFile(config LogConfig, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(config.LogDir, name),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
}

// CloseLogger 关闭日志文件, 全局日志器恢复为静默
func CloseLogger() {
	logFilesMu.Lock()
	defer logFilesMu.Unlock()
	for _, f := range logFiles {
		_ = f.Close()
	}
	logFiles = nil
	Logger = zerolog.Nop()
}

// FilteredWriter 只写入MinLevel及以上级别的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 没有级别信息的写入直接丢弃
func (w *FilteredWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// WriteLevel 实现zerolog.LevelWriter
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level >= w.MinLevel {
		return w.Writer.Write(p)
	}
	return len(p), nil
}

// Info 信息日志
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Infof 格式化信息日志
func Infof(format string, args ...interface{}) {
	Logger.Info().Msgf(format, args...)
}

// Error 带错误对象的错误日志
func Error(err error, msg string) {
	Logger.Error().Err(err).Msg(msg)
}

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) {
	Logger.Error().Msgf(format, args...)
}

// Warn 警告日志
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Warnf 格式化警告日志
func Warnf(format string, args ...interface{}) {
	Logger.Warn().Msgf(format, args...)
}

// Debug 调试日志
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Debugf 格式化调试日志
func Debugf(format string, args ...interface{}) {
	Logger.Debug().Msgf(format, args...)
}

// Fatal 记录后退出程序
func Fatal(err error, msg string) {
	Logger.Fatal().Err(err).Msg(msg)
}
