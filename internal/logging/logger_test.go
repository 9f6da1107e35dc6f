package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vowpact/internal/config"
)

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Initialize(dir, config.LoggingConfig{Level: "debug", DebugMode: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	t.Cleanup(CloseAll)

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Store("Convenience store log")
	Contracts("Convenience contracts log")
	Generate("Convenience generate log")

	CloseAll()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range AllCategories {
		found := false
		for _, entry := range entries {
			if !strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				continue
			}
			found = true
			content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				t.Errorf("Failed to read log file for %s: %v", cat, err)
				continue
			}
			if !strings.Contains(string(content), "[ERROR] Test error message for "+string(cat)) {
				t.Errorf("log file for %s missing error line:\n%s", cat, content)
			}
			break
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Initialize(dir, config.LoggingConfig{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(CloseAll)

	Store("should not be written")
	Get(CategoryHTTP).Error("nor this")

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("logs dir should not exist in production mode, stat err=%v", err)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(dir, config.LoggingConfig{Level: "warn", DebugMode: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(CloseAll)

	l := Get(CategoryStore)
	l.Debug("hidden-debug")
	l.Info("hidden-info")
	l.Warn("visible-warn")
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(dir, "*_store.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one store log, got %v", matches)
	}
	content, _ := os.ReadFile(matches[0])
	s := string(content)
	if strings.Contains(s, "hidden-") {
		t.Errorf("debug/info lines leaked past warn level:\n%s", s)
	}
	if !strings.Contains(s, "visible-warn") {
		t.Errorf("warn line missing:\n%s", s)
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	lc := config.LoggingConfig{DebugMode: true, Categories: map[string]bool{"http": false}}
	if err := Initialize(dir, lc); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(CloseAll)

	if IsCategoryEnabled(CategoryHTTP) {
		t.Error("http should be disabled")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("store should default to enabled")
	}
}

func TestJSONFormat(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(dir, config.LoggingConfig{DebugMode: true, JSONFormat: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(CloseAll)

	Get(CategoryRender).StructuredLog("info", "pdf rendered", map[string]interface{}{"bytes": 42})
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(dir, "*_render.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one render log, got %v", matches)
	}
	content, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(content), `"msg":"pdf rendered"`) || !strings.Contains(string(content), `"bytes":42`) {
		t.Errorf("unexpected JSON log content:\n%s", content)
	}
}

func TestConvenienceFunctions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(dir, config.LoggingConfig{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(CloseAll)

	BootError("store unavailable")
	HTTP("listening on 127.0.0.1:0")
	HTTPRequest("warn", map[string]interface{}{"route": "/api/contracts/{id}", "status": 500})
	StoreWarn("contracts.json is empty")
	CLI("exported c1")
	CloseAll()

	want := map[Category]string{
		CategoryBoot:  "[ERROR] store unavailable",
		CategoryHTTP:  "route:/api/contracts/{id}",
		CategoryStore: "[WARN] contracts.json is empty",
		CategoryCLI:   "[INFO] exported c1",
	}
	for cat, line := range want {
		matches, _ := filepath.Glob(filepath.Join(dir, "*_"+string(cat)+".log"))
		if len(matches) != 1 {
			t.Fatalf("expected one %s log, got %v", cat, matches)
		}
		content, _ := os.ReadFile(matches[0])
		if !strings.Contains(string(content), line) {
			t.Errorf("%s log missing %q:\n%s", cat, line, content)
		}
	}
}

func TestInitializeRequiresDir(t *testing.T) {
	if err := Initialize("", config.LoggingConfig{}); err == nil {
		t.Error("expected error for empty dir")
	}
}
