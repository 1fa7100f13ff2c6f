package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that tees output to the console and to
// a rotated log file.
//
// The file always receives JSON. The console receives colored,
// human-readable lines in development mode and JSON otherwise.
// An empty filePath disables the file output.
func NewMultiCore(level zapcore.Level, filePath string, isDev bool) (zapcore.Core, error) {
	console := zapcore.Lock(os.Stdout)
	if filePath == "" {
		return newConsoleCore(level, console, isDev), nil
	}

	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return NewMultiCoreWithWriters(level, console, NewFileWriter(filePath), isDev), nil
}

// NewMultiCoreWithWriters creates a zapcore.Core that tees output to the
// provided writers.
//
// Example:
//
//	var buf bytes.Buffer
//	core := NewMultiCoreWithWriters(zapcore.DebugLevel, zapcore.AddSync(os.Stdout), zapcore.AddSync(&buf), true)
//	logger := zap.New(core)
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)
	return zapcore.NewTee(newConsoleCore(level, consoleWriter, isDev), fileCore)
}

func newConsoleCore(level zapcore.Level, w zapcore.WriteSyncer, isDev bool) zapcore.Core {
	var encoder zapcore.Encoder
	if isDev {
		encoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	return zapcore.NewCore(encoder, w, level)
}
