package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/proctor-cat/backend/internal/adaptive"
	"github.com/proctor-cat/backend/internal/calibration"
)

type Config struct {
	Port            string
	ServiceName     string
	LogMode         string
	LogLevel        string
	ShutdownTimeout time.Duration

	DB DBConfig

	JWTSecret          string
	CORSAllowedOrigins []string

	Adaptive    adaptive.Config
	Calibration calibration.Config

	CalibrationWorkers int
	MisfitThreshold    float64

	// Warnings collects values that were present but unusable; the caller
	// logs them once a logger exists.
	Warnings []string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		Port:            l.str("PORT", "8080"),
		ServiceName:     l.str("SERVICE_NAME", "proctor-cat"),
		LogMode:         l.str("LOG_MODE", "dev"),
		LogLevel:        l.str("LOG_LEVEL", ""),
		ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		DB: DBConfig{
			Host:     l.str("DB_HOST", "localhost"),
			Port:     l.str("DB_PORT", "5432"),
			User:     l.str("DB_USER", "cat_user"),
			Password: l.str("DB_PASSWORD", "cat_password"),
			Name:     l.str("DB_NAME", "proctor_cat"),
			SSLMode:  l.str("DB_SSLMODE", "disable"),
		},
		JWTSecret:          l.str("JWT_SECRET", ""),
		CORSAllowedOrigins: l.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CalibrationWorkers: l.integer("CALIBRATION_WORKERS", 1),
		MisfitThreshold:    l.float("MISFIT_THRESHOLD", calibration.DefaultMisfitThreshold),
	}

	ad := adaptive.DefaultConfig()
	ad.MinQuestions = l.integer("CAT_MIN_QUESTIONS", ad.MinQuestions)
	ad.MaxQuestions = l.integer("CAT_MAX_QUESTIONS", ad.MaxQuestions)
	ad.TargetSE = l.float("CAT_TARGET_SE", ad.TargetSE)
	ad.CoverageSE = l.float("CAT_COVERAGE_SE", ad.CoverageSE)
	ad.TimeLimit = l.duration("CAT_TIME_LIMIT", ad.TimeLimit)
	if ad.MaxQuestions < ad.MinQuestions {
		l.warn("CAT_MAX_QUESTIONS=%d is below CAT_MIN_QUESTIONS=%d, using defaults", ad.MaxQuestions, ad.MinQuestions)
		def := adaptive.DefaultConfig()
		ad.MinQuestions, ad.MaxQuestions = def.MinQuestions, def.MaxQuestions
	}
	cfg.Adaptive = ad

	cal := calibration.DefaultConfig()
	cal.MinResponses = l.integer("CALIBRATION_MIN_RESPONSES", cal.MinResponses)
	cal.MaxIterations = l.integer("CALIBRATION_MAX_ITERATIONS", cal.MaxIterations)
	cfg.Calibration = cal

	if cfg.JWTSecret == "" {
		l.warn("JWT_SECRET is not set")
	}
	cfg.Warnings = l.warnings
	return cfg
}

type loader struct {
	warnings []string
}

func (l *loader) warn(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) str(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func (l *loader) list(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (l *loader) integer(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		l.warn("%s=%q is not a positive integer, using %d", k, v, def)
		return def
	}
	return n
}

func (l *loader) float(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		l.warn("%s=%q is not a positive number, using %g", k, v, def)
		return def
	}
	return f
}

func (l *loader) duration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.warn("%s=%q is not a valid duration, using %s", k, v, def)
		return def
	}
	return d
}
