package config

import "time"

// APIConfig holds runtime configuration for the tracker API service.
type APIConfig struct {
	Environment            string
	Addr                   string
	DatabaseURL            string
	MigrationsDir          string
	ProbeTimeout           time.Duration
	ProbeMaxConcurrent     int
	ProbeMaxBodyBytes      int64
	RetentionDays          int
	RetentionSweepInterval time.Duration
	TopNDefault            int
	ExecuteRateLimit       int
	RateLimitRedisAddr     string
	RateLimitRedisPass     string
	RateLimitRedisDB       int
	StreamHeartbeat        time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:            GetString("APP_ENV", "development"),
		Addr:                   GetString("API_ADDR", ":4000"),
		DatabaseURL:            GetString("DATABASE_URL", "postgres://tracker:tracker@db:5432/tracker?sslmode=disable"),
		MigrationsDir:          GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		ProbeTimeout:           time.Duration(GetInt("PROBE_TIMEOUT_SECONDS", 30)) * time.Second,
		ProbeMaxConcurrent:     GetInt("PROBE_MAX_CONCURRENT", 16),
		ProbeMaxBodyBytes:      int64(GetInt("PROBE_MAX_BODY_BYTES", 1<<20)),
		RetentionDays:          GetInt("RETENTION_DAYS", 90),
		RetentionSweepInterval: time.Duration(GetInt("RETENTION_SWEEP_SECONDS", 3600)) * time.Second,
		TopNDefault:            GetInt("ANALYTICS_TOP_N_DEFAULT", 10),
		ExecuteRateLimit:       GetInt("EXECUTE_RATE_LIMIT_PER_MINUTE", 120),
		RateLimitRedisAddr:     GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:     GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:       GetInt("RATE_LIMIT_REDIS_DB", 0),
		StreamHeartbeat:        time.Duration(GetInt("STREAM_HEARTBEAT_SECONDS", 25)) * time.Second,
	}
}
