// Package logger 统一的日志初始化：logrus + lumberjack 轮转
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	// currentLogFile 当前日志文件路径
	currentLogFile string
	// logMu 初始化锁
	logMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别: debug, info, warn, error
	OutputFile string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    // 日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留旧日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
}

// Init 初始化日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     true,
	}
	logger.SetFormatter(formatter)

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if config.OutputFile != "" {
		logDir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}

		// 按大小轮转
		fileWriter := &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		writers = append(writers, fileWriter)
		currentLogFile = config.OutputFile
	}

	multiWriter := io.MultiWriter(writers...)
	logger.SetOutput(multiWriter)

	// 同时设置全局 logrus，保证各包里 logrus.WithField() 创建的
	// 组件 logger 也写入同一个输出
	logrus.SetOutput(multiWriter)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)

	Logger = logger
	return nil
}

// InitDefault 使用默认配置初始化（仅控制台输出，info 级别）
func InitDefault() error {
	return Init(Config{Level: "info"})
}

// GetCurrentLogFile 返回当前日志文件路径（仅控制台输出时为空）
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}

func std() *logrus.Logger {
	if Logger != nil {
		return Logger
	}
	return logrus.StandardLogger()
}

// Debug 输出调试日志
func Debug(args ...interface{}) {
	std().Debug(args...)
}

// Debugf 输出格式化调试日志
func Debugf(format string, args ...interface{}) {
	std().Debugf(format, args...)
}

// Info 输出信息日志
func Info(args ...interface{}) {
	std().Info(args...)
}

// Infof 输出格式化信息日志
func Infof(format string, args ...interface{}) {
	std().Infof(format, args...)
}

// Warn 输出警告日志
func Warn(args ...interface{}) {
	std().Warn(args...)
}

// Warnf 输出格式化警告日志
func Warnf(format string, args ...interface{}) {
	std().Warnf(format, args...)
}

// Error 输出错误日志
func Error(args ...interface{}) {
	std().Error(args...)
}

// Errorf 输出格式化错误日志
func Errorf(format string, args ...interface{}) {
	std().Errorf(format, args...)
}

// WithField 创建带字段的日志条目
func WithField(key string, value interface{}) *logrus.Entry {
	return std().WithField(key, value)
}

// WithFields 创建带多个字段的日志条目
func WithFields(fields logrus.Fields) *logrus.Entry {
	return std().WithFields(fields)
}
