package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/app"
)

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = " SQLite "
	cfg.Database.Path = " ./data/auth.sqlite "

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/auth.sqlite", dbCfg.Path)

	cfg = &app.Config{}
	cfg.Database.Driver = "postgresql"
	cfg.Database.Postgres = app.DBAuthConfig{Host: "db", Port: 5432, Database: "auth", Username: "svc", Password: " pw "}

	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "auth", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)
	require.Equal(t, "pw", dbCfg.Password)

	cfg = &app.Config{}
	cfg.Database.Driver = "mysql"
	cfg.Database.MySQL = app.DBAuthConfig{Host: "mysql", Port: 3306}

	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql", dbCfg.Host)
	require.Equal(t, 3306, dbCfg.Port)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestLoadApplicationConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))

	cfg, err := loadApplicationConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	require.NoError(t, loadEnvFile(""))

	const key = "AUTHCORE_BOOTSTRAP_TEST_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))
	require.NoError(t, loadEnvFile(path))
	require.Equal(t, "from-file", os.Getenv(key))
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "authcore.sqlite")
	cfg.Cache.Redis.Enabled = false
	cfg.Auth.Session.Secret = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer stack.Shutdown(context.Background(), zap.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBootstrapRuntimeRejectsShortSecret(t *testing.T) {
	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "authcore.sqlite")
	cfg.Auth.Session.Secret = "too-short"

	_, err = bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
