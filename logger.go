package rtucrc

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel type defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // Disables logging
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "NONE"
	}
}

// ParseLogLevel converts a string such as "debug" to its LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARNING", "WARN":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "NONE":
		return LevelNone, nil
	}
	return LevelNone, fmt.Errorf("invalid log level: %s", s)
}

// LevelLogger is a leveled io.WriteCloser. Messages written to it carry a
// "[DEBUG] ..." style prefix which decides whether they pass the configured
// level; unprefixed messages count as INFO. RelayClient and the relayctl
// tool log through it.
type LevelLogger struct {
	mu     sync.Mutex
	level  LogLevel
	output io.WriteCloser
	prefix string
}

// NewLevelLogger creates a LevelLogger. If output is nil, it defaults to
// os.Stdout.
func NewLevelLogger(output io.WriteCloser, level LogLevel, prefix string) *LevelLogger {
	if output == nil {
		output = os.Stdout
	}
	return &LevelLogger{
		level:  level,
		output: output,
		prefix: prefix,
	}
}

// SetLevel sets the logging level.
func (l *LevelLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Write implements io.Writer, filtering messages below the set level.
func (l *LevelLogger) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	level := messageLevel(message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == LevelNone || level < l.level {
		return len(p), nil
	}
	line := fmt.Sprintf("%s [%s] <%s> %s\n",
		time.Now().Format(time.RFC3339), level, l.prefix, message)
	return l.output.Write([]byte(line))
}

// Close closes the underlying output unless it is os.Stdout.
func (l *LevelLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.output == os.Stdout {
		return nil
	}
	return l.output.Close()
}

// messageLevel infers the level from a "[DEBUG]" or "DEBUG:" style prefix,
// defaulting to INFO.
func messageLevel(message string) LogLevel {
	upper := strings.ToUpper(message)
	for _, level := range []LogLevel{LevelDebug, LevelInfo, LevelWarning, LevelError} {
		name := level.String()
		if strings.HasPrefix(upper, "["+name+"]") || strings.HasPrefix(upper, name+":") {
			return level
		}
	}
	return LevelInfo
}
