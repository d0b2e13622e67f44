package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// GetGlobalConfigDir returns the path to the global configuration directory (~/.plantrack).
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultDataDir), nil
}

// GetDataDir returns the directory holding plan stores.
// Resolution order (first match wins):
// 1. Explicit config via "data.dir" (Viper/env/flag)
// 2. Local project directory: .plantrack (if exists)
// 3. XDG_DATA_HOME/plantrack (if XDG_DATA_HOME is set)
// 4. Global fallback: ~/.plantrack
func GetDataDir() string {
	if path := viper.GetString("data.dir"); path != "" {
		return path
	}

	if info, err := os.Stat(DefaultDataDir); err == nil && info.IsDir() {
		return DefaultDataDir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "plantrack")
	}

	dir, err := GetGlobalConfigDir()
	if err != nil {
		return "./" + DefaultDataDir
	}
	return dir
}

// GetPoliciesDir returns the directory holding transition policies.
func GetPoliciesDir() string {
	return getStringWithDefault("policy.dir", filepath.Join(GetDataDir(), "policies"))
}

// GetCrashLogDir returns the directory crash logs are written to.
func GetCrashLogDir() string {
	return filepath.Join(GetDataDir(), "crash_logs")
}
