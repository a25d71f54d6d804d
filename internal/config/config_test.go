package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, ChatIDPair, cfg.ChatIDMode)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.NotEmpty(t, cfg.JWTSecret)
	require.Equal(t, time.UTC, cfg.Location())
}

func TestLoadRequiresStoreURL(t *testing.T) {
	t.Setenv("STORE", "valkey")
	t.Setenv("VALKEY_URL", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORE", "memory")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE", "memory")
	t.Setenv("CHAT_ID_MODE", "sequential")
	_, err := Load()
	require.ErrorContains(t, err, "CHAT_ID_MODE")

	t.Setenv("CHAT_ID_MODE", "random")
	t.Setenv("TOKEN_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "TOKEN_TTL")
}
