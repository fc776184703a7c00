package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface so tests can swap in capture loggers
// without touching the file-backed default.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

var (
	defaultLogger *fileLogger
	defaultOnce   sync.Once
)

// fileLogger writes leveled, component-prefixed lines to otto-debug.log and stdout.
type fileLogger struct {
	mu        sync.Mutex
	out       *log.Logger
	level     Level
	component string
	echo      io.Writer
}

// Default returns the process-wide logger instance.
func Default() Logger {
	return getDefault()
}

func getDefault() *fileLogger {
	defaultOnce.Do(func() {
		defaultLogger = newFileLogger("", DEBUG)
	})
	return defaultLogger
}

// NewComponentLogger returns the default logger scoped to a component name.
func NewComponentLogger(component string) Logger {
	base := getDefault()
	return &fileLogger{
		out:       base.out,
		level:     base.level,
		component: component,
		echo:      base.echo,
	}
}

// SetLevel sets the minimum level on the default logger.
func SetLevel(level Level) {
	base := getDefault()
	base.mu.Lock()
	base.level = level
	base.mu.Unlock()
}

func newFileLogger(component string, level Level) *fileLogger {
	l := &fileLogger{level: level, component: component, echo: os.Stdout}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("logging: cannot resolve home directory: %v", err)
		return l
	}

	path := filepath.Join(home, "otto-debug.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("logging: cannot open %s: %v", path, err)
		return l
	}

	l.out = log.New(file, "", 0)
	return l
}

func (l *fileLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "OTTO"
	}

	// Format: 2025-09-30 12:34:56 [INFO] [Engine] engine.go:123 - message
	message := fmt.Sprintf(format, args...)
	lineOut := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), levelString(level), component, file, line, sanitize(message))

	if l.out != nil {
		l.out.Print(lineOut)
	}
	if l.echo != nil {
		fmt.Fprint(l.echo, lineOut)
	}
}

func (l *fileLogger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.log(ERROR, format, args...) }

func levelString(level Level) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const redactedPlaceholder = "[REDACTED]"

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-\._~+/]+=*)`)
	secretKeyPattern   = regexp.MustCompile(
		`(?i)((?:"|')?(?:api[_-]?key|access[_-]?token|token|secret|password)(?:"|')?\s*(?:=|:)\s*)(?:"|')?([^"'\s,;]+)((?:"|')?)`,
	)
)

// sanitize scrubs credentials out of log lines before they hit disk.
func sanitize(line string) string {
	out := bearerTokenPattern.ReplaceAllString(line, "${1}"+redactedPlaceholder)
	return secretKeyPattern.ReplaceAllString(out, "${1}"+redactedPlaceholder+"${3}")
}
