package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/persistence/middleware"
	"github.com/aretw0/replyflow/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, store ports.SessionStore, cfg middleware.EncryptionConfig) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(store)
}

func newSession(id string) *domain.Session {
	return domain.NewSession(id, &domain.Conversation{ID: "conv-" + id, Channel: domain.ChannelProduction},
		&domain.Instance{ID: "inst", TemplateVersionID: "v1"}, "collect", 0, 10)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	s := newSession("s1")
	s.Variables["secret"] = "my-secret-sauce"
	s.SlotValues["email"] = "ana@example.com"
	s.Record(domain.Event{Kind: domain.EventNodeTransition, NodeID: "collect", NextNodeID: "confirm", Message: "email collected"})

	if err := secure.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if s.Revision != 1 {
		t.Errorf("Save must report the new revision to the caller, got %d", s.Revision)
	}

	stored, err := underlying.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("underlying load failed: %v", err)
	}
	if _, ok := stored.Variables["secret"]; ok {
		t.Fatal("variables must not be stored in plain text")
	}
	if _, ok := stored.Variables[middleware.EnvelopeKey]; !ok {
		t.Fatal("expected the envelope in stored variables")
	}
	if len(stored.SlotValues) != 0 || stored.Events.Len() != 0 {
		t.Error("slot values and events must not be stored in plain text")
	}
	if stored.Status != domain.StatusActive || stored.ConversationID != "conv-s1" {
		t.Error("routing fields must stay readable")
	}

	loaded, err := secure.FindActive(ctx, "conv-s1")
	if err != nil {
		t.Fatalf("FindActive via middleware failed: %v", err)
	}
	if loaded.Variables["secret"] != "my-secret-sauce" || loaded.SlotValues["email"] != "ana@example.com" {
		t.Errorf("unexpected decrypted data: %v %v", loaded.Variables, loaded.SlotValues)
	}
	if loaded.Events.Len() != 1 || loaded.Events.Cap() != 10 {
		t.Errorf("event log not restored: len %d cap %d", loaded.Events.Len(), loaded.Events.Cap())
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	s := newSession("rotation")
	s.Variables["data"] = "encrypted-with-old-key"
	if err := oldStore.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Load(ctx, "rotation")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Variables["data"] != "encrypted-with-old-key" {
		t.Errorf("decryption with fallback key failed")
	}

	loaded.Variables["data"] = "encrypted-with-new-key"
	if err := newStore.Save(ctx, loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := oldStore.Load(ctx, "rotation"); err == nil {
		t.Error("expected failure when loading new-key data with only the old key")
	}
}

func TestEncryptionMiddleware_PlainSessionFailsClosed(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	if err := underlying.Save(ctx, newSession("plain")); err != nil {
		t.Fatal(err)
	}
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := secure.Load(ctx, "plain"); !errors.Is(err, middleware.ErrNotEncrypted) {
		t.Errorf("expected ErrNotEncrypted, got %v", err)
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); err == nil {
		t.Error("expected an error for an invalid key size")
	}
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if err == nil || !strings.Contains(err.Error(), "fallback key 0") {
		t.Errorf("expected a fallback key error, got %v", err)
	}
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	if err != nil || string(got) != string(key) {
		t.Fatalf("ParseKey() = %v, %v", got, err)
	}
	if _, err := middleware.ParseKey("not base64!"); err == nil {
		t.Error("expected a decoding error")
	}
	if _, err := middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("expected a length error")
	}
}
