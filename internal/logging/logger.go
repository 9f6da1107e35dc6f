// Package logging provides config-driven categorized file-based logging for vowpact.
// Logs are written to <data_dir>/logs/ with separate files per category.
// Logging is controlled by logging.debug_mode - when false, no category logs are written.
// The audit trail in audit.go is independent of debug mode.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vowpact/internal/config"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config, wiring
	CategoryHTTP      Category = "http"      // Request handling
	CategoryAuth      Category = "auth"      // Login, sessions
	CategoryStore     Category = "store"     // JSON/SQLite persistence, file watcher
	CategoryContracts Category = "contracts" // Contract lifecycle operations
	CategoryGenerate  Category = "generate"  // AI-assisted drafting
	CategoryRender    Category = "render"    // HTML/PDF rendering, Chrome
	CategorySignature Category = "signature" // Signature validation
	CategoryCLI       Category = "cli"       // Command line operations
)

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryBoot, CategoryHTTP, CategoryAuth, CategoryStore, CategoryContracts,
	CategoryGenerate, CategoryRender, CategorySignature, CategoryCLI,
}

// StructuredLogEntry represents a JSON log entry
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`  // Unix milliseconds
	Category  string                 `json:"cat"` // Log category
	Level     string                 `json:"lvl"` // debug/info/warn/error
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	cfg       config.LoggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and applies the logging config.
// Should be called once at startup.
func Initialize(dir string, lc config.LoggingConfig) error {
	if dir == "" {
		return fmt.Errorf("logs directory required")
	}

	CloseAll()

	configMu.Lock()
	logsDir = dir
	cfg = lc
	logLevel = parseLevel(lc.Level)
	configMu.Unlock()

	if !lc.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== vowpact logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", lc.Level)
	if len(lc.Categories) > 0 {
		enabled := 0
		for cat, on := range lc.Categories {
			if on {
				enabled++
			}
			boot.Debug("Category '%s': %v", cat, on)
		}
		boot.Info("Enabled categories: %d/%d", enabled, len(lc.Categories))
	} else {
		boot.Info("All categories enabled (no category filter)")
	}

	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return cfg.IsCategoryEnabled(string(category))
}

func isJSON() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return cfg.JSONFormat
}

func level() int {
	configMu.RLock()
	defer configMu.RUnlock()
	return logLevel
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()
	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

func (l *Logger) write(lvl int, tag, format string, args ...interface{}) {
	if l.logger == nil || level() > lvl {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if isJSON() {
		l.logJSON(tag, msg, nil)
		return
	}
	l.logger.Printf("[%s] %s", upper(tag), msg)
}

func (l *Logger) logJSON(lvl, msg string, fields map[string]interface{}) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     lvl,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", upper(lvl), msg)
		return
	}
	l.logger.Printf("%s", data)
}

func upper(lvl string) string {
	switch lvl {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn":
		return "WARN"
	}
	return "ERROR"
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "debug", format, args...)
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "info", format, args...)
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "warn", format, args...)
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "error", format, args...)
}

// StructuredLog writes a fully structured log entry with custom fields
func (l *Logger) StructuredLog(lvl string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	if isJSON() {
		l.logJSON(lvl, msg, fields)
		return
	}
	l.logger.Printf("[%s] %s | fields=%v", upper(lvl), msg, fields)
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func HTTP(format string, args ...interface{})      { Get(CategoryHTTP).Info(format, args...) }
func HTTPError(format string, args ...interface{}) { Get(CategoryHTTP).Error(format, args...) }

// HTTPRequest records one served request with its fields.
func HTTPRequest(lvl string, fields map[string]interface{}) {
	Get(CategoryHTTP).StructuredLog(lvl, "request", fields)
}

func Auth(format string, args ...interface{})     { Get(CategoryAuth).Info(format, args...) }
func AuthWarn(format string, args ...interface{}) { Get(CategoryAuth).Warn(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Contracts(format string, args ...interface{})     { Get(CategoryContracts).Info(format, args...) }
func ContractsWarn(format string, args ...interface{}) { Get(CategoryContracts).Warn(format, args...) }

func Generate(format string, args ...interface{})      { Get(CategoryGenerate).Info(format, args...) }
func GenerateDebug(format string, args ...interface{}) { Get(CategoryGenerate).Debug(format, args...) }
func GenerateError(format string, args ...interface{}) { Get(CategoryGenerate).Error(format, args...) }

func Render(format string, args ...interface{})      { Get(CategoryRender).Info(format, args...) }
func RenderError(format string, args ...interface{}) { Get(CategoryRender).Error(format, args...) }

func Signature(format string, args ...interface{})     { Get(CategorySignature).Info(format, args...) }
func SignatureWarn(format string, args ...interface{}) { Get(CategorySignature).Warn(format, args...) }

func CLI(format string, args ...interface{}) { Get(CategoryCLI).Info(format, args...) }
