package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// LogWriter 把 gorm 的 Printf 输出写到日志同一目的地
type LogWriter struct {
	out zapcore.WriteSyncer
}

func (l *LogWriter) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, _ = l.out.Write([]byte(line))
	_ = l.out.Sync()
}

// GetWriter Init 之前写 stdout
func GetWriter() *LogWriter {
	return logWriter
}
