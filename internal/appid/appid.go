// Package appid holds the static identity of the deepseek-bot binary.
package appid

import "strings"

// Identity names the binary and the prefixes it uses for config and env.
type Identity struct {
	BinaryName  string
	Vendor      string
	ConfigName  string
	EnvPrefix   string
	Description string
}

var current = Identity{
	BinaryName:  "deepseek-bot",
	Vendor:      "ding-fan",
	ConfigName:  "deepseek-bot",
	EnvPrefix:   "DEEPSEEK_BOT_",
	Description: "Rate-limited Telegram relay for DeepSeek chat completions",
}

// Get returns the application identity.
func Get() Identity {
	return current
}

// EnvPrefix returns the env var prefix, always ending in an underscore.
func EnvPrefix() string {
	prefix := strings.TrimSpace(current.EnvPrefix)
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}
