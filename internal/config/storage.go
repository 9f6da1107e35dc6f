package config

import (
	"fmt"
	"path/filepath"
)

// ValidStorageDrivers lists the supported storage backends.
var ValidStorageDrivers = []string{"json", "sqlite"}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver     string `yaml:"driver"` // json, sqlite
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"` // defaults to <data_dir>/vowpact.db
	Watch      bool   `yaml:"watch"`       // reload JSON files edited outside the process
}

// DatabasePath returns the SQLite file path.
func (s StorageConfig) DatabasePath() string {
	if s.SQLitePath != "" {
		return s.SQLitePath
	}
	return filepath.Join(s.DataDir, "vowpact.db")
}

// LogsDir is where categorized debug logs are written.
func (s StorageConfig) LogsDir() string {
	return filepath.Join(s.DataDir, "logs")
}

// AuditPath is the append-only audit trail.
func (s StorageConfig) AuditPath() string {
	return filepath.Join(s.DataDir, "audit.jsonl")
}

func (s StorageConfig) validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	for _, d := range ValidStorageDrivers {
		if s.Driver == d {
			return nil
		}
	}
	return fmt.Errorf("invalid storage driver: %s (valid: %v)", s.Driver, ValidStorageDrivers)
}

// AuthConfig configures the mock cookie session.
type AuthConfig struct {
	CookieName   string         `yaml:"cookie_name"`
	SessionTTL   string         `yaml:"session_ttl"`
	SecureCookie bool           `yaml:"secure_cookie"`
	DemoUser     DemoUserConfig `yaml:"demo_user"`
}

// DemoUserConfig describes the vendor account seeded on first start.
type DemoUserConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Email        string `yaml:"email"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	BusinessName string `yaml:"business_name"`
	VendorType   string `yaml:"vendor_type"`
}
