package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore(), memory.NewCatalog())
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		conv := fmt.Sprintf("conv-%d", i)
		_ = mgr.WithConversation(ctx, domain.ChannelProduction, conv, func(context.Context) error { return nil })
	}

	if lockCount := len(mgr.locks); lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after %d conversations", lockCount, count)
	}
}

func TestLockKey(t *testing.T) {
	if got := LockKey(domain.ChannelPreview, "c1"); got != "preview:c1" {
		t.Errorf("unexpected key %q", got)
	}
	if LockKey(domain.ChannelPreview, "c1") == LockKey(domain.ChannelProduction, "c1") {
		t.Error("preview and production must not share a lock domain")
	}
}
