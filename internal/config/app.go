package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DatabasePath returns the SQLite database location, creating the parent
// directory if needed.
func DatabasePath() (string, error) {
	path := viper.GetString("database.path")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".local", "share", "ledgermail", "ledgermail.db")
	} else {
		path = ExpandPath(path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// ModelsDir returns the directory holding trained classifier artifacts,
// creating it if needed.
func ModelsDir() (string, error) {
	dir := viper.GetString("models.dir")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".local", "share", "ledgermail", "models")
	} else {
		dir = ExpandPath(dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// ServerAddr returns the API listen address.
func ServerAddr() string {
	if addr := viper.GetString("server.addr"); addr != "" {
		return addr
	}
	return ":8080"
}

// SweepSchedule returns the cron expression for the background mail sweep.
// Empty means the scheduler default.
func SweepSchedule() string {
	return viper.GetString("scheduler.schedule")
}
