// Package config loads daemon settings from ~/.gamecode/config.yaml,
// secrets.yaml and environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overrides cfg from the environment. Hosted deployments set
// these instead of shipping a config file.
func ApplyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt("GAMECODE_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("GAMECODE_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("GAMECODE_LOG_LEVEL", cfg.Daemon.LogLevel)
	cfg.Storage.Driver = getEnv("GAMECODE_STORAGE", cfg.Storage.Driver)
	cfg.Courses.Dir = getEnv("GAMECODE_COURSES_DIR", cfg.Courses.Dir)
	cfg.Daemon.AllowedOrigins = getEnvList("GAMECODE_ALLOWED_ORIGINS", cfg.Daemon.AllowedOrigins)

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Storage.PostgresURL = url
		if os.Getenv("GAMECODE_STORAGE") == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if addr := os.Getenv("REDIS_URL"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		cfg.Queue.URL = url
		cfg.Queue.Enabled = true
	}
	cfg.Preview.SyntaxCheck.Enabled = getEnvBool("GAMECODE_SYNTAX_CHECK", cfg.Preview.SyntaxCheck.Enabled)

	for name, env := range map[string]string{
		"deepseek": "DEEPSEEK_API_KEY",
		"openai":   "OPENAI_API_KEY",
	} {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		if p, ok := cfg.LLM.Providers[name]; ok {
			p.APIKey = key
			p.Enabled = true
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
