package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"checkout.backend/internal/config"
	plog "checkout.backend/pkg/logger"
)

func withMainHooks(t *testing.T) {
	t.Helper()
	origLoadDotenv := loadDotenv
	origLoadCfg := loadCfg
	origInitLog := initLog
	origInitRedis := initRedis
	origOpenDB := openDB
	origRunMigrations := runMigrations
	origRunServer := runServer

	t.Cleanup(func() {
		loadDotenv = origLoadDotenv
		loadCfg = origLoadCfg
		initLog = origInitLog
		initRedis = origInitRedis
		openDB = origOpenDB
		runMigrations = origRunMigrations
		runServer = origRunServer
	})

	loadDotenv = func(...string) error { return errors.New("no .env") }
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
	runMigrations = func(*gorm.DB, string) error { return nil }
	openDB = func(config.DatabaseConfig) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	}
	runServer = func(*gin.Engine, string) error { return nil }
}

func baseTestConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: "18080", Env: "development"},
		Database: config.DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "postgres", DBName: "checkout", SSLMode: "disable", AutoMigrate: true},
		Gateway:  config.GatewayConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		Accounts: config.AccountsConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		Mail:     config.MailConfig{LoginURL: "https://example.com/login"},
		Cron:     config.CronConfig{Secret: "cron-secret", Interval: time.Hour, Lookback: 48 * time.Hour, LockTTL: time.Minute},
		Provisioning: config.ProvisioningConfig{
			MaxRetries: 5,
			BatchSize:  50,
			StaleAfter: 15 * time.Minute,
		},
		Reconciler: config.ReconcilerConfig{MaxAttempts: 5, Delay: time.Millisecond, EnrichmentSkew: 10 * time.Minute},
		Security:   config.SecurityConfig{CredentialKey: strings.Repeat("0", 64)},
	}
}

func cfgLoader(cfg *config.Config) func() (*config.Config, error) {
	return func() (*config.Config, error) { return cfg, nil }
}

func TestRunMainProcess_ConfigError(t *testing.T) {
	withMainHooks(t)
	loadCfg = func() (*config.Config, error) { return nil, errors.New("bad env") }

	require.Error(t, runMainProcess())
}

func TestRunMainProcess_DBOpenError(t *testing.T) {
	withMainHooks(t)
	loadCfg = cfgLoader(baseTestConfig())
	openDB = func(config.DatabaseConfig) (*gorm.DB, error) { return nil, errors.New("db open failed") }

	require.Error(t, runMainProcess())
}

func TestRunMainProcess_MigrationError(t *testing.T) {
	withMainHooks(t)
	loadCfg = cfgLoader(baseTestConfig())
	runMigrations = func(*gorm.DB, string) error { return errors.New("dirty database") }

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations")
}

func TestRunMainProcess_InvalidCredentialKey(t *testing.T) {
	withMainHooks(t)
	cfg := baseTestConfig()
	cfg.Security.CredentialKey = "short"
	loadCfg = cfgLoader(cfg)

	require.Error(t, runMainProcess())
}

func TestRunMainProcess_MissingCredentialKey(t *testing.T) {
	withMainHooks(t)
	cfg := baseTestConfig()
	cfg.Security.CredentialKey = ""
	loadCfg = cfgLoader(cfg)

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential encryption key")
}

func TestRunMainProcess_ZeroCredentialKeyOutsideDevelopment(t *testing.T) {
	withMainHooks(t)
	served := false
	runServer = func(*gin.Engine, string) error {
		served = true
		return nil
	}
	cfg := baseTestConfig()
	cfg.Server.Env = "staging"
	loadCfg = cfgLoader(cfg)

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all zeros")
	assert.False(t, served)
}

func TestRunMainProcess_ZeroCredentialKeyAllowedInDevelopment(t *testing.T) {
	withMainHooks(t)
	loadCfg = cfgLoader(baseTestConfig())

	require.NoError(t, runMainProcess())
}

func TestRunMainProcess_ServerRunError(t *testing.T) {
	withMainHooks(t)
	loadCfg = cfgLoader(baseTestConfig())
	runServer = func(*gin.Engine, string) error { return errors.New("listen failed") }

	require.Error(t, runMainProcess())
}

func TestRunMainProcess_RedisFailureIsNotFatal(t *testing.T) {
	withMainHooks(t)
	cfg := baseTestConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"
	loadCfg = cfgLoader(cfg)
	initRedis = func(string, string) error { return errors.New("redis down") }

	require.NoError(t, runMainProcess())
}

func TestRunMainProcess_ServesRoutes(t *testing.T) {
	withMainHooks(t)
	cfg := baseTestConfig()
	cfg.Cron.InProcess = true
	loadCfg = cfgLoader(cfg)

	runServer = func(r *gin.Engine, port string) error {
		assert.Equal(t, "18080", port)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "go_goroutines")

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/cron/reconcile", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		return nil
	}

	require.NoError(t, runMainProcess())
}
