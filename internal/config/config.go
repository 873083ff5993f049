package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the appauth server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Argon2    Argon2Config
	Roles     RolesConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type SessionConfig struct {
	CookieName string
	// RotationInterval is the period of the in-process rotation sweep.
	// Zero disables it and leaves rotation to an external scheduler.
	RotationInterval time.Duration
	RotationLockTTL  time.Duration
}

type Argon2Config struct {
	MemoryKiB   int
	Iterations  int
	Parallelism int
}

type RolesConfig struct {
	Source string
	// Map is the raw ROLE_MAP value, e.g. "alice=Admin|Manager;bob=Viewer".
	Map             string
	AdminPermission string
}

type RateLimitConfig struct {
	RequestsPerMin int
	LoginsPerMin   int
}

var validRoleSources = map[string]bool{
	"static": true,
	"redis":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("APPAUTH_PORT", 8080),
			Env:  envString("APPAUTH_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Session: SessionConfig{
			CookieName:       envString("SESSION_COOKIE_NAME", "appauth_session"),
			RotationInterval: envDuration("ROTATION_INTERVAL", 0),
			RotationLockTTL:  envDuration("ROTATION_LOCK_TTL", time.Minute),
		},
		Argon2: Argon2Config{
			MemoryKiB:   envInt("ARGON2_MEMORY_KIB", 64*1024),
			Iterations:  envInt("ARGON2_ITERATIONS", 3),
			Parallelism: envInt("ARGON2_PARALLELISM", 2),
		},
		Roles: RolesConfig{
			Source:          envString("ROLE_SOURCE", "static"),
			Map:             os.Getenv("ROLE_MAP"),
			AdminPermission: envString("ADMIN_PERMISSION", "admin"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMin: envInt("RATE_LIMIT_PER_MIN", 120),
			LoginsPerMin:   envInt("LOGIN_RATE_LIMIT_PER_MIN", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Session.CookieName == "" || strings.ContainsAny(c.Session.CookieName, " ;,=") {
		return fmt.Errorf("SESSION_COOKIE_NAME must be a non-empty cookie token, got %q", c.Session.CookieName)
	}
	if c.Session.RotationInterval < 0 {
		return fmt.Errorf("ROTATION_INTERVAL must not be negative, got %s", c.Session.RotationInterval)
	}
	if c.Session.RotationInterval > 0 && c.Session.RotationLockTTL <= 0 {
		return fmt.Errorf("ROTATION_LOCK_TTL must be positive when ROTATION_INTERVAL is set")
	}

	if c.Argon2.MemoryKiB < 8*c.Argon2.Parallelism || c.Argon2.Iterations < 1 ||
		c.Argon2.Parallelism < 1 || c.Argon2.Parallelism > 255 {
		return fmt.Errorf("ARGON2_* parameters out of range: memory=%dKiB iterations=%d parallelism=%d",
			c.Argon2.MemoryKiB, c.Argon2.Iterations, c.Argon2.Parallelism)
	}

	if !validRoleSources[c.Roles.Source] {
		return fmt.Errorf("ROLE_SOURCE must be one of static, redis; got %q", c.Roles.Source)
	}
	if c.Roles.AdminPermission == "" {
		return fmt.Errorf("ADMIN_PERMISSION must not be empty")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
