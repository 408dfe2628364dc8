package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/adapters/redis"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/dsl"
	"github.com/aretw0/replyflow/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mgr   *session.Manager
	store *memory.Store
	conv  *domain.Conversation
	inst  *domain.Instance
	other *domain.Instance
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	b := dsl.New("ver-1")
	b.Add("welcome").Send("Hi!").Go("faq")
	b.Add("faq").AIReply("Be helpful.")
	version := b.MustBuild()

	f := &fixture{
		store: memory.NewStore(),
		conv:  &domain.Conversation{ID: "conv-1", WorkspaceID: "ws-1", Channel: domain.ChannelProduction},
		inst:  &domain.Instance{ID: "inst-1", WorkspaceID: "ws-1", TemplateVersionID: "ver-1", Active: true},
		other: &domain.Instance{ID: "inst-2", WorkspaceID: "ws-1", TemplateVersionID: "ver-1", Active: true},
	}
	catalog, err := memory.NewCatalogFrom([]*domain.TemplateVersion{version}, f.inst, f.other)
	require.NoError(t, err)
	f.mgr = session.NewManager(f.store, catalog, opts...)
	return f
}

func TestManager_OpenSeedsVariables(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv, Variables: map[string]any{"source": "ad"}})
	require.NoError(t, err)
	assert.Equal(t, "ad", s.Variables["source"])

	again, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv, Variables: map[string]any{"source": "other"}})
	require.NoError(t, err)
	assert.Equal(t, "ad", again.Variables["source"], "an existing session keeps its variables")
}

func TestManager_Open(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, "welcome", s.CurrentNodeID)
	assert.Equal(t, 0, s.StepIndex)
	assert.Equal(t, int64(1), s.Revision)

	again, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv})
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID, "the open session is reused")

	_, err = f.mgr.Open(ctx, session.OpenRequest{Instance: f.other, Conversation: f.conv})
	assert.ErrorIs(t, err, domain.ErrActiveSessionExists)

	_, err = f.mgr.Stop(ctx, s.ID, "done")
	require.NoError(t, err)

	next, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.other, Conversation: f.conv})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, next.ID)
}

func TestManager_OpenRejectsInactiveInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.inst.Active = false

	_, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	preview := &domain.Conversation{ID: "preview-1", WorkspaceID: "ws-1", Channel: domain.ChannelPreview}
	_, err = f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: preview})
	assert.NoError(t, err, "preview may exercise inactive instances")
}

func TestManager_ConcurrentOpenCreatesOneSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv})
			assert.NoError(t, err)
			if s != nil {
				ids[i] = s.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	all, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestManager_SerializesConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var inFlight, maxSeen atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.mgr.WithConversation(ctx, domain.ChannelProduction, "conv-1", func(context.Context) error {
				n := inFlight.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestManager_PreviewDoesNotShareProductionLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	done := make(chan struct{})
	err := f.mgr.WithConversation(ctx, domain.ChannelProduction, "conv-1", func(ctx context.Context) error {
		go func() {
			defer close(done)
			_ = f.mgr.WithConversation(ctx, domain.ChannelPreview, "conv-1", func(context.Context) error { return nil })
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("preview turn blocked behind production lock")
		}
		return nil
	})
	require.NoError(t, err)
	<-done
}

func TestManager_StatusChanges(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var changes []string
	hooks := domain.LifecycleHooks{
		OnStatusChange: func(_ context.Context, e *domain.StatusEvent) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, string(e.From)+"->"+string(e.To))
		},
	}
	f := newFixture(t, session.WithLifecycleHooks(hooks))

	s, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv})
	require.NoError(t, err)

	paused, err := f.mgr.Pause(ctx, s.ID, "agent took over")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)
	assert.Equal(t, "agent took over", paused.PauseReason)

	_, err = f.mgr.Pause(ctx, s.ID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	resumed, err := f.mgr.Resume(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, resumed.Status)
	assert.Empty(t, resumed.PauseReason)

	stopped, err := f.mgr.Stop(ctx, s.ID, "closed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stopped.Status)

	_, err = f.mgr.Resume(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrSessionTerminal)

	_, err = f.mgr.Pause(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.Equal(t, []string{"active->paused", "paused->active", "active->completed"}, changes)

	loaded, err := f.mgr.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Events.Len())
}

func TestManager_CommitDetectsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s, err := f.mgr.Open(ctx, session.OpenRequest{Instance: f.inst, Conversation: f.conv})
	require.NoError(t, err)

	stale := s.Clone()
	s.Variables["k"] = "v"
	require.NoError(t, f.mgr.Commit(ctx, s))

	err = f.mgr.Commit(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrRevisionConflict)
	assert.True(t, domain.IsPersistenceError(err))
}

func TestManager_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, session.WithLocker(redis.NewLocker(client, "rf:")), session.WithLockTTL(5*time.Second))
	ctx := context.Background()

	err := f.mgr.WithConversation(ctx, domain.ChannelProduction, "conv-1", func(context.Context) error {
		assert.True(t, mr.Exists("rf:lock:production:conv-1"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("rf:lock:production:conv-1"))
}
