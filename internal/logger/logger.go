package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chatUnique/keyguard-pro/internal/config"
)

// ServiceName 写入每条日志的服务标识
const ServiceName = "keyguard-pro"

// Config 日志配置
type Config struct {
	Level       string
	Development bool
	LogFile     string
	MaxSize     int // MB
	MaxBackups  int
	MaxAge      int // days
	Compress    bool

	// Output 替换标准输出，测试时使用
	Output io.Writer
}

// FromConfig 由应用配置生成日志配置，轮转文件默认压缩
func FromConfig(cfg config.LogConfig) Config {
	return Config{
		Level:       cfg.Level,
		Development: cfg.Development,
		LogFile:     cfg.File,
		MaxSize:     cfg.MaxSize,
		MaxBackups:  cfg.MaxBackups,
		MaxAge:      cfg.MaxAge,
		Compress:    true,
	}
}

// NewLogger 创建日志记录器
//
// 开发模式使用彩色控制台编码并在 error 级别附带堆栈，否则输出 JSON。
// 配置了 LogFile 时同时写入轮转文件和标准输出。
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(out)}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)

	opts := []zap.Option{zap.AddCaller(), zap.Fields(zap.String("service", ServiceName))}
	if cfg.Development {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(core, opts...), nil
}

// NewDevelopmentLogger 创建开发环境日志记录器，失败时返回 Nop
func NewDevelopmentLogger() *zap.Logger {
	log, err := NewLogger(Config{Level: "debug", Development: true})
	if err != nil {
		return zap.NewNop()
	}
	return log
}
