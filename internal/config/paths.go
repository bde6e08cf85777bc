package config

import (
	"path/filepath"

	gfconfig "github.com/fulmenhq/gofulmen/config"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/appid"
)

// DefaultConfigPath is config.yaml in the XDG config directory, or "" when
// that directory cannot be resolved.
func DefaultConfigPath() string {
	dir := gfconfig.GetAppConfigDir(appid.Get().ConfigName)
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appid.Get().ConfigName)
}

// DefaultStorePath places the ledger for driver in the data directory, or
// the working directory as a fallback.
func DefaultStorePath(driver string) string {
	name := "data.json"
	if driver == StoreDriverLibsql {
		name = appid.Get().BinaryName + ".db"
	}
	if dir := DefaultDataDir(); dir != "" {
		return filepath.Join(dir, name)
	}
	return "./" + name
}
