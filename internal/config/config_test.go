package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "proctor-cat", cfg.ServiceName)
	assert.Empty(t, cfg.LogLevel)
	assert.Equal(t, 10, cfg.Adaptive.MinQuestions)
	assert.Equal(t, 50, cfg.Adaptive.MaxQuestions)
	assert.Equal(t, 0.3, cfg.Adaptive.TargetSE)
	assert.Equal(t, 2*time.Hour, cfg.Adaptive.TimeLimit)
	assert.Equal(t, 10, cfg.Calibration.MinResponses)
	assert.Equal(t, 100, cfg.Calibration.MaxIterations)
	assert.Equal(t, 0.1, cfg.MisfitThreshold)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CAT_MIN_QUESTIONS", "5")
	t.Setenv("CAT_MAX_QUESTIONS", "30")
	t.Setenv("CAT_TARGET_SE", "0.25")
	t.Setenv("CAT_TIME_LIMIT", "45m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Adaptive.MinQuestions)
	assert.Equal(t, 30, cfg.Adaptive.MaxQuestions)
	assert.Equal(t, 0.25, cfg.Adaptive.TargetSE)
	assert.Equal(t, 45*time.Minute, cfg.Adaptive.TimeLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CAT_MAX_QUESTIONS", "many")
	t.Setenv("CAT_TARGET_SE", "-1")
	t.Setenv("CAT_TIME_LIMIT", "soon")

	cfg := Load()
	assert.Equal(t, 50, cfg.Adaptive.MaxQuestions)
	assert.Equal(t, 0.3, cfg.Adaptive.TargetSE)
	assert.Equal(t, 2*time.Hour, cfg.Adaptive.TimeLimit)
	assert.Len(t, cfg.Warnings, 3)
}

func TestLoad_MaxBelowMin(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CAT_MIN_QUESTIONS", "40")
	t.Setenv("CAT_MAX_QUESTIONS", "20")

	cfg := Load()
	assert.Equal(t, 10, cfg.Adaptive.MinQuestions)
	assert.Equal(t, 50, cfg.Adaptive.MaxQuestions)
	assert.Len(t, cfg.Warnings, 1)
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
