// Package logging provides named, levelled loggers
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a log message
type Level int

const (
	ERROR Level = iota
	WARNING
	INFO
	DEBUG
)

// String returns the short name printed in log lines
func (l Level) String() string {
	switch l {
	case ERROR:
		return "ERROR"
	case WARNING:
		return "WARN"
	case INFO:
		return "INFO"
	case DEBUG:
		return "DEBUG"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a string level to a Level
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warning", "warn":
		return WARNING, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// Logger writes messages at or below its level
type Logger struct {
	name string

	mtx    sync.Mutex
	level  Level
	logger *log.Logger
}

// New creates a logger with the given name writing to w
func New(name string, w io.Writer) *Logger {
	return &Logger{
		name:   name,
		level:  INFO,
		logger: log.New(w, "", log.Ldate|log.Ltime),
	}
}

// SetLevel sets the maximum level that will be written
func (l *Logger) SetLevel(level Level) {
	l.mtx.Lock()
	l.level = level
	l.mtx.Unlock()
}

// SetOutput sets the destination for log lines
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log(DEBUG, format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(INFO, format, args...)
}

func (l *Logger) Warningf(format string, args ...any) {
	l.log(WARNING, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(ERROR, format, args...)
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mtx.Lock()
	enabled := level <= l.level
	l.mtx.Unlock()
	if !enabled {
		return
	}

	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", level, l.name, message)
}

var (
	registryMtx sync.Mutex
	registry    = map[string]*Logger{}
	output      io.Writer = os.Stdout
	level                 = INFO
)

// GetLogger returns the logger registered under name,
// creating it if it does not exist yet
func GetLogger(name string) *Logger {
	registryMtx.Lock()
	defer registryMtx.Unlock()

	l, ok := registry[name]
	if !ok {
		l = New(name, output)
		l.SetLevel(level)
		registry[name] = l
	}
	return l
}

// SetLevelAll sets the level of every registered logger
// as well as loggers created later on
func SetLevelAll(lvl Level) {
	registryMtx.Lock()
	defer registryMtx.Unlock()

	level = lvl
	for _, l := range registry {
		l.SetLevel(lvl)
	}
}

// SetOutputAll redirects every registered logger, as well as
// loggers created later on, to w
func SetOutputAll(w io.Writer) {
	registryMtx.Lock()
	defer registryMtx.Unlock()

	output = w
	for _, l := range registry {
		l.SetOutput(w)
	}
}
