package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FilePrefix names the daily log files: fundboard-YYYYMMDD.log.
const FilePrefix = "fundboard"

const (
	EnvLogLevel  = "FUNDBOARD_LOG_LEVEL"
	EnvLogFormat = "FUNDBOARD_LOG_FORMAT"

	defaultRetentionDays = 7
	dateLayout           = "20060102"
)

// Options configures NewLogger. Environment variables win over Level and Format.
type Options struct {
	Dir           string
	Level         string
	Format        string
	RetentionDays int
	// Console receives a copy of every record; nil means os.Stdout.
	Console io.Writer
}

// DailyWriter appends to one file per day and removes files past retention.
type DailyWriter struct {
	dir       string
	prefix    string
	retention int
	now       func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyWriter opens today's file under dir.
func NewDailyWriter(dir, prefix string, retentionDays int) (*DailyWriter, error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	if prefix == "" {
		prefix = FilePrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := &DailyWriter{dir: dir, prefix: prefix, retention: retentionDays, now: time.Now}
	if err := w.openFor(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer.
func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openFor(w.now()); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

// Path returns the file currently written to.
func (w *DailyWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathFor(w.day)
}

// Close closes the current file.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *DailyWriter) pathFor(day string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.prefix, day))
}

func (w *DailyWriter) openFor(now time.Time) error {
	day := now.Format(dateLayout)
	if day == w.day && w.file != nil {
		return nil
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	file, err := os.OpenFile(w.pathFor(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.day = day
	w.file = file
	w.prune(now)
	return nil
}

func (w *DailyWriter) prune(now time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -w.retention)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, w.prefix+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, w.prefix+"-"), ".log")
		day, err := time.Parse(dateLayout, stamp)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, name))
		}
	}
}

// NewLogger builds the process logger, installs it as slog's default and
// returns the file writer so the caller can close it on shutdown.
// An empty Dir logs to the console only.
func NewLogger(opts Options) (*slog.Logger, *DailyWriter, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var out io.Writer = console
	var writer *DailyWriter
	if opts.Dir != "" {
		w, err := NewDailyWriter(opts.Dir, FilePrefix, opts.RetentionDays)
		if err != nil {
			return nil, nil, err
		}
		writer = w
		out = io.MultiWriter(console, w)
	}

	level := ParseLevel(firstSet(os.Getenv(EnvLogLevel), opts.Level), slog.LevelInfo)
	format := firstSet(os.Getenv(EnvLogFormat), opts.Format)
	logger := slog.New(newHandler(out, level, format)).With("service", FilePrefix)
	slog.SetDefault(logger)
	return logger, writer, nil
}

// ParseLevel accepts debug, info, warn(ing), error or a numeric slog level.
func ParseLevel(value string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return fallback
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return slog.Level(i)
		}
		return fallback
	}
}

func newHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, options)
	}
	return slog.NewTextHandler(w, options)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
