package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel はログのレベルを表す型です。
type LogLevel = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
	LevelFatal = zapcore.FatalLevel
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(LevelInfo)
	sugar = newConsoleLogger(level).Sugar()
)

// newConsoleLogger は標準エラー出力に書き出すコンソール形式のロガーを生成します。
func newConsoleLogger(lvl zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core)
}

// SetLogLevel はログレベルを設定します。
func SetLogLevel(name string) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		level.SetLevel(LevelDebug)
	case "INFO", "":
		level.SetLevel(LevelInfo)
	case "WARN", "WARNING":
		level.SetLevel(LevelWarn)
	case "ERROR":
		level.SetLevel(LevelError)
	case "FATAL":
		level.SetLevel(LevelFatal)
	default:
		level.SetLevel(LevelInfo)
		Warnf("不明なログレベル '%s' が指定されました。INFO レベルで続行します。", name)
	}
}

// GetLogLevel は現在のログレベルを返します。
func GetLogLevel() LogLevel {
	return level.Level()
}

// ReplaceLogger はロガーの出力先を差し替え、元に戻す関数を返します。
// テストで zaptest/observer を差し込むために使用します。
func ReplaceLogger(l *zap.Logger) func() {
	mu.Lock()
	prev := sugar
	sugar = l.Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		sugar = prev
		mu.Unlock()
	}
}

// Sync はバッファされたログをフラッシュします。
func Sync() error {
	return current().Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...interface{}) {
	current().Fatalf(format, v...)
}
