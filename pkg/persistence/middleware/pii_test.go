package middleware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn", "^email$"})
	if err != nil {
		t.Fatal(err)
	}
	view := mw(underlying)
	ctx := context.Background()

	s := newSession("pii")
	s.Variables["username"] = "jdoe"
	s.Variables["user_password"] = "secret123"
	s.Variables["details"] = map[string]any{
		"address":    "123 St",
		"ssn_number": "999-99-9999",
	}
	s.SlotValues["email"] = "ana@example.com"
	s.SlotValues["plan"] = "pro"
	if err := underlying.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	masked, err := view.Load(ctx, "pii")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if masked.Variables["username"] != "jdoe" || masked.SlotValues["plan"] != "pro" {
		t.Error("unmatched keys must not be masked")
	}
	if masked.Variables["user_password"] != middleware.Mask {
		t.Errorf("password should be masked, got: %v", masked.Variables["user_password"])
	}
	details := masked.Variables["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask || details["address"] != "123 St" {
		t.Errorf("nested values masked wrongly: %v", details)
	}
	if masked.SlotValues["email"] != middleware.Mask {
		t.Errorf("slot value should be masked, got: %v", masked.SlotValues["email"])
	}

	raw, err := underlying.Load(ctx, "pii")
	if err != nil {
		t.Fatal(err)
	}
	if raw.SlotValues["email"] != "ana@example.com" {
		t.Error("the view must not change stored data")
	}

	if err := view.Save(ctx, masked); !errors.Is(err, middleware.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("expected an error for an invalid pattern")
	}
}

func TestChain_OrdersOutermostFirst(t *testing.T) {
	underlying := memory.NewStore()
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if err != nil {
		t.Fatal(err)
	}
	redact, err := middleware.NewPIIMiddleware([]string{"email"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s := newSession("chain")
	s.SlotValues["email"] = "ana@example.com"
	if err := enc(underlying).Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := middleware.Chain(underlying, redact, enc).Load(ctx, "chain")
	if err != nil {
		t.Fatalf("Load through chain failed: %v", err)
	}
	if got.SlotValues["email"] != middleware.Mask {
		t.Errorf("expected decrypted then masked value, got %q", got.SlotValues["email"])
	}
}
