package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionPersistenceContract runs a suite of tests to verify that a SessionPersistence
// implementation adheres to the defined interface contract.
func RunSessionPersistenceContract(t *testing.T, store SessionPersistence) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405.000000")

	t.Run("Create and Get", func(t *testing.T) {
		s := domain.NewSession(sessionID, "owner-1", time.Now())
		s.Data["foo"] = "bar"
		s.Data["count"] = 42

		require.NoError(t, store.Create(ctx, s, 0), "Create should not return error")

		loaded, err := store.Get(ctx, sessionID)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, sessionID, loaded.ID)
		assert.Equal(t, "owner-1", loaded.OwnerID)
		assert.True(t, loaded.Active)
		assert.Equal(t, "bar", loaded.Data["foo"])
		// JSON-backed stores turn ints into float64; only existence is part of the contract.
		assert.NotNil(t, loaded.Data["count"])
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		err := store.Create(ctx, domain.NewSession(sessionID, "other", time.Now()), 0)
		assert.ErrorIs(t, err, domain.ErrSessionExists)
	})

	t.Run("Get Isolation", func(t *testing.T) {
		loaded, err := store.Get(ctx, sessionID)
		require.NoError(t, err)
		loaded.Data["foo"] = "mutated"

		again, err := store.Get(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "bar", again.Data["foo"], "callers must not mutate stored state through returned copies")
	})

	t.Run("Update Merges", func(t *testing.T) {
		inactive := false
		err := store.Update(ctx, sessionID, domain.SessionPatch{
			Data:   map[string]any{"extra": "value"},
			Active: &inactive,
		})
		require.NoError(t, err)

		loaded, err := store.Get(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "bar", loaded.Data["foo"], "Update must not replace the whole map")
		assert.Equal(t, "value", loaded.Data["extra"])
		assert.False(t, loaded.Active)
	})

	t.Run("Update Non-Existent", func(t *testing.T) {
		err := store.Update(ctx, "non-existent-"+sessionID, domain.SessionPatch{Data: map[string]any{"a": 1}})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Create(ctx, domain.NewSession(id1, "o", time.Now()), 0))
		require.NoError(t, store.Create(ctx, domain.NewSession(id2, "o", time.Now()), 0))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Get(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Get after Delete should return ErrSessionNotFound")
	})
}
