package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSession(id, conversationID string) *domain.Session {
	conv := &domain.Conversation{ID: conversationID, WorkspaceID: "ws-contract", Channel: domain.ChannelProduction}
	inst := &domain.Instance{ID: "inst-contract", TemplateVersionID: "ver-contract"}
	return domain.NewSession(id, conv, inst, "start", 0, 0)
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	sessionID := "contract-session-" + suffix
	conversationID := "contract-conv-" + suffix

	t.Run("Save and Load", func(t *testing.T) {
		s := contractSession(sessionID, conversationID)
		s.Variables["foo"] = "bar"
		s.SlotValues["email"] = "ana@example.com"
		s.Record(domain.Event{Kind: domain.EventNodeTransition, NodeID: "start", NextNodeID: "next"})

		require.NoError(t, store.Save(ctx, s), "Save should not return error")
		assert.Equal(t, int64(1), s.Revision, "Save must bump the revision")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, s.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, "bar", loaded.Variables["foo"])
		assert.Equal(t, "ana@example.com", loaded.SlotValues["email"])
		assert.Equal(t, int64(1), loaded.Revision)
		require.NotNil(t, loaded.Events)
		assert.Equal(t, 1, loaded.Events.Len())
	})

	t.Run("Revision Conflict", func(t *testing.T) {
		first, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		second, err := store.Load(ctx, sessionID)
		require.NoError(t, err)

		first.StepIndex = 1
		require.NoError(t, store.Save(ctx, first))

		second.StepIndex = 2
		err = store.Save(ctx, second)
		assert.ErrorIs(t, err, domain.ErrRevisionConflict)

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.StepIndex)
	})

	t.Run("FindActive", func(t *testing.T) {
		active, err := store.FindActive(ctx, conversationID)
		require.NoError(t, err)
		assert.Equal(t, sessionID, active.ID)

		require.NoError(t, active.Transition(domain.StatusCompleted, "done"))
		require.NoError(t, store.Save(ctx, active))

		_, err = store.FindActive(ctx, conversationID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, contractSession(id1, conversationID+"-1")))
		require.NoError(t, store.Save(ctx, contractSession(id2, conversationID+"-2")))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
