package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewStoreDefaultsToMemory(t *testing.T) {
	logger := zap.NewNop().Sugar()

	store, err := NewStore(Config{}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	// Postgres without a DSN degrades to memory instead of failing startup.
	store, err = NewStore(Config{Backend: "postgres"}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	_, err := NewStore(Config{Backend: "sqlite"}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
