package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config selects and tunes a backend.
type Config struct {
	// Driver is detected from URL when empty.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath defaults to ~/.tempo/tempo.db.
	SQLitePath string
	// MaxConns applies to PostgreSQL only.
	MaxConns int
}

type connector func(ctx context.Context, cfg Config) (Connection, error)

var connectors = map[Driver]connector{}

// Register installs a backend. Driver packages call it from init.
func Register(driver Driver, fn func(ctx context.Context, cfg Config) (Connection, error)) {
	connectors[driver] = fn
}

// NewConnection opens the backend described by cfg. The driver package must
// be linked in with a blank import.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDriver(cfg.URL)
	}
	if driver == DriverSQLite && cfg.SQLitePath == "" && cfg.URL != "" {
		cfg.SQLitePath = SQLitePathFromURL(cfg.URL)
	}

	fn, ok := connectors[driver]
	if !ok {
		return nil, fmt.Errorf("database driver %q is not registered", driver)
	}
	return fn(ctx, cfg)
}

// DefaultSQLitePath is the local-mode database location.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".tempo", "tempo.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
