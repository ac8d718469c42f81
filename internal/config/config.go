package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	DBDriver      string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	SessionSecret string
	GinMode       string

	LogLevel  string
	LogFormat string
	LogOutput string
	LogPath   string

	// EventQueueSize bounds the dispatcher queue; events beyond it are dropped.
	EventQueueSize int
	// RedisEvents fans events out through Redis pub/sub instead of the local hub only.
	RedisEvents bool

	AllowPreemptiveOverride bool
	SemesterRulesFile       string
	Rules                   Rules

	// The admin account is created at startup when both are set.
	BootstrapAdminUsername string
	BootstrapAdminPassword string

	// AllowedOrigins lists the Origin headers accepted on the websocket.
	AllowedOrigins []string
}

func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBDriver:      getEnv("DB_DRIVER", "mysql"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "allocuser"),
		DBPassword:    getEnv("DB_PASSWORD", "allocpassword"),
		DBName:        getEnv("DB_NAME", "project_allocation"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-key-change-me"),
		GinMode:       getEnv("GIN_MODE", "debug"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
		LogPath:   getEnv("LOG_PATH", "./logs"),

		EventQueueSize: getEnvInt("EVENT_QUEUE_SIZE", 1024),
		RedisEvents:    getEnvBool("REDIS_EVENTS", true),

		AllowPreemptiveOverride: getEnvBool("ALLOW_PREEMPTIVE_OVERRIDE", true),
		SemesterRulesFile:       getEnv("SEMESTER_RULES_FILE", ""),

		BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		AllowedOrigins:         getEnvList("WS_ALLOWED_ORIGINS"),
	}

	cfg.Rules = Rules{
		Default: SemesterRules{
			MinMembers:     getEnvInt("DEFAULT_MIN_MEMBERS", 1),
			MaxMembers:     getEnvInt("DEFAULT_MAX_MEMBERS", 5),
			MinPreferences: getEnvInt("MIN_PREFERENCES", 3),
			MaxPreferences: getEnvInt("MAX_PREFERENCES", 5),
		},
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
