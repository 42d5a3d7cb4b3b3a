package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/models"
	"github.com/passlink/passlink/internal/server/repositories/memory"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunOnce_SweepsOnlyDeadRows(t *testing.T) {
	store := memory.NewStore()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	ctx := context.Background()
	now := time.Now()

	tokens := store.Tokens(store.Handle())
	require.NoError(t, tokens.Create(ctx, &models.MagicLinkToken{
		ID: "dead", UserID: "u1", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-45 * time.Minute),
	}))
	require.NoError(t, tokens.Create(ctx, &models.MagicLinkToken{
		ID: "live", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(cfg.TokenTTL),
	}))

	sessions := store.Sessions(store.Handle())
	require.NoError(t, sessions.Create(ctx, &models.Session{
		ID: "stale", UserID: "u1",
		CreatedAt: now.Add(-2 * cfg.SessionSlide), LastSeenAt: now.Add(-2 * cfg.SessionSlide),
		AbsoluteExpiresAt: now.Add(cfg.SessionAbsolute),
	}))
	require.NoError(t, sessions.Create(ctx, &models.Session{
		ID: "active", UserID: "u1",
		CreatedAt: now, LastSeenAt: now,
		AbsoluteExpiresAt: now.Add(cfg.SessionAbsolute),
	}))

	_, err := store.Lockouts(store.Handle()).Extend(ctx, "email:a@example.com", now.Add(-time.Minute), "x")
	require.NoError(t, err)

	janitor := NewJanitor(store, cfg, testLogger())
	require.NoError(t, janitor.RunOnce(ctx))

	_, err = tokens.Get(ctx, "dead")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = tokens.Get(ctx, "live")
	assert.NoError(t, err)

	_, err = sessions.Get(ctx, "stale")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = sessions.Get(ctx, "active")
	assert.NoError(t, err)

	_, err = store.Lockouts(store.Handle()).Get(ctx, "email:a@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.CleanupInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(store, cfg, testLogger()).Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop on cancel")
	}
}
