package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/config"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

func TestInitWritesConfigOnce(t *testing.T) {
	ws := t.TempDir()
	cfg, created, err := Init(ws)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, cfg.Auth.JWTSecret, 64)

	again, created, err := Init(ws)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg.Auth.JWTSecret, again.Auth.JWTSecret)
}

func TestOpenMigratesAndResolvesActor(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	rt, err := Open(ctx, ws, nil, &bytes.Buffer{})
	require.NoError(t, err)
	defer rt.Close()
	assert.Positive(t, rt.Applied)

	_, err = rt.Actor(ctx, "admin")
	assert.ErrorIs(t, err, engine.ErrForbidden)

	_, err = rt.Engine.Bootstrap(ctx, engine.CreateUserInput{
		Username: "admin", Email: "admin@example.org", FullName: "Admin", Role: domain.RoleAdmin,
	})
	require.NoError(t, err)
	actor, err := rt.Actor(ctx, " admin ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, actor.Role)

	_, err = rt.Actor(ctx, "")
	assert.Error(t, err)
}

func TestOpenAppliesOverrides(t *testing.T) {
	v := viper.New()
	v.Set("cases.overdue_days", 3)
	v.Set("log.level", "debug")
	rt, err := Open(context.Background(), t.TempDir(), v, &bytes.Buffer{})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, 3, rt.Config.Cases.OverdueDays)
	assert.Equal(t, rt.Config, rt.Engine.Config)
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.Log.Level = "warn"
	logger := NewLogger(cfg, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
