package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

// Format represents the output format
type Format string

const (
	// FormatConsole outputs colored console logs (default)
	FormatConsole Format = "console"
	// FormatJSON outputs one JSON object per line
	FormatJSON Format = "json"
)

// DefaultRedactKeys are field names whose values never reach the output.
// Matching is case-insensitive.
var DefaultRedactKeys = []string{
	"password",
	"access_token",
	"refresh_token",
	"token",
	"authorization",
	"api_key",
	"secret",
}

// Config holds the logger configuration
type Config struct {
	// Level is the minimum log level to output
	Level Level

	Format Format

	// EnableColors only applies to the console format
	EnableColors bool

	// EnableCaller adds file and line number to logs
	EnableCaller bool

	EnableTimestamp bool

	// TimeFormat is a time layout, or "unix" / "unixmilli"
	TimeFormat string

	// RedactKeys lists field names masked with RedactedValue
	RedactKeys []string

	// Output defaults to os.Stdout
	Output io.Writer
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           LevelInfo,
		Format:          FormatConsole,
		EnableColors:    true,
		EnableTimestamp: true,
		TimeFormat:      time.RFC3339,
		RedactKeys:      append([]string(nil), DefaultRedactKeys...),
		Output:          os.Stdout,
	}
}

var namedTimeFormats = map[string]string{
	"RFC3339":     time.RFC3339,
	"RFC3339NANO": time.RFC3339Nano,
	"RFC822":      time.RFC822,
	"UNIX":        "unix",
	"UNIXMILLI":   "unixmilli",
}

// LoadFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_COLOR, LOG_CALLER,
// LOG_TIME_FORMAT and LOG_REDACT_KEYS (comma separated, added to the
// defaults) on top of DefaultConfig.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = ParseLevel(level)
	}

	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		config.Format = FormatJSON
	case "console":
		config.Format = FormatConsole
	}

	if color, ok := envBool("LOG_COLOR"); ok {
		config.EnableColors = color
	}
	if caller, ok := envBool("LOG_CALLER"); ok {
		config.EnableCaller = caller
	}

	if timeFormat := os.Getenv("LOG_TIME_FORMAT"); timeFormat != "" {
		if named, ok := namedTimeFormats[strings.ToUpper(timeFormat)]; ok {
			config.TimeFormat = named
		} else {
			config.TimeFormat = timeFormat
		}
	}

	for _, key := range strings.Split(os.Getenv("LOG_REDACT_KEYS"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			config.RedactKeys = append(config.RedactKeys, key)
		}
	}

	return config
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	return strings.EqualFold(v, "true") || v == "1", true
}
