package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/button-monitor/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	mu     sync.RWMutex

	// 模块日志器及其独立级别
	moduleLoggers map[string]*zap.Logger
	moduleLevels  map[string]zap.AtomicLevel
)

// Init 初始化日志系统，可重复调用以替换当前日志器
func Init(cfg *config.LogConfig) error {
	level.SetLevel(parseLevel(cfg.Level))

	encoder := newEncoder(cfg.Format)

	var sinks []zapcore.WriteSyncer
	var errorSink zapcore.WriteSyncer

	// 控制台输出
	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}

	// 文件输出
	if cfg.Output == "file" || cfg.Output == "both" {
		logDir := cfg.File.Path
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}

		// 支持日志轮转
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, cfg.File.Filename),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}))
		errorSink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, "error.log"),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		})
	}

	// 主日志器与模块日志器共用同一组输出
	newCore := func(enab zapcore.LevelEnabler) zapcore.Core {
		cores := make([]zapcore.Core, 0, len(sinks)+1)
		for _, ws := range sinks {
			cores = append(cores, zapcore.NewCore(encoder, ws, enab))
		}
		if errorSink != nil {
			cores = append(cores, zapcore.NewCore(encoder, errorSink, zapcore.ErrorLevel))
		}
		return zapcore.NewTee(cores...)
	}
	newLogger := func(enab zapcore.LevelEnabler) *zap.Logger {
		return zap.New(newCore(enab), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	modules := make(map[string]*zap.Logger, len(cfg.Modules))
	levels := make(map[string]zap.AtomicLevel, len(cfg.Modules))
	for module, levelStr := range cfg.Modules {
		ml := zap.NewAtomicLevelAt(parseLevel(levelStr))
		levels[module] = ml
		modules[module] = newLogger(ml).Named(module)
	}

	mu.Lock()
	logger = newLogger(level)
	moduleLoggers = modules
	moduleLevels = levels
	mu.Unlock()

	return nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// parseLevel 解析日志级别
func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel 动态设置日志级别（配置热加载时使用）
func SetLevel(levelStr string) {
	level.SetLevel(parseLevel(levelStr))
}

// SetModuleLevels 更新已配置模块的日志级别。
// 配置中去掉的模块回到主日志级别，新增的模块需要重新 Init。
func SetModuleLevels(levels map[string]string) {
	mu.RLock()
	defer mu.RUnlock()
	for module, ml := range moduleLevels {
		if levelStr, ok := levels[module]; ok {
			ml.SetLevel(parseLevel(levelStr))
		} else {
			ml.SetLevel(level.Level())
		}
	}
}

// Level 返回当前日志级别
func Level() zapcore.Level {
	return level.Level()
}

// GetLogger 获取日志器，未初始化时返回空日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// WithModule 获取模块日志器，未单独配置级别的模块共用主日志器
func WithModule(module string) *zap.Logger {
	mu.RLock()
	ml, ok := moduleLoggers[module]
	mu.RUnlock()
	if ok {
		return ml
	}
	return GetLogger().Named(module)
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogRequest 记录请求日志
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP, requestID string) {
	WithModule("http").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
		zap.String("request_id", requestID),
	)
}

// LogPanic 记录panic日志
func LogPanic(recovered interface{}, stack []byte) {
	GetLogger().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// LogSerialLine 记录串口收到的一行数据
func LogSerialLine(device, line string) {
	WithModule("serial").Debug("serial_line",
		zap.String("device", device),
		zap.String("line", line),
	)
}

// Cleanup 清理日志资源
func Cleanup() {
	if err := Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}
