package middleware_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	if err != nil {
		t.Fatalf("NewPIIMiddleware failed: %v", err)
	}
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	s := domain.NewSession("pii-session", "owner", time.Now())
	s.Data["username"] = "jdoe"
	s.Data["user_password"] = "secret123"
	s.Data["details"] = map[string]any{
		"address":    "123 St",
		"ssn_number": "999-99-9999",
	}

	if err := secureStore.Create(ctx, s, 0); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if s.Data["user_password"] != "secret123" {
		t.Error("Middleware modified the caller's session in memory!")
	}

	stored, err := underlyingStore.Get(ctx, "pii-session")
	if err != nil {
		t.Fatalf("Underlying get failed: %v", err)
	}
	if stored.Data["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if stored.Data["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", stored.Data["user_password"])
	}
	details := stored.Data["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Errorf("Address shouldn't be masked, got: %v", details["address"])
	}
}

func TestPIIMiddleware_UpdateMasksPatch(t *testing.T) {
	underlyingStore := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"(?i)token"})
	if err != nil {
		t.Fatalf("NewPIIMiddleware failed: %v", err)
	}
	store := mw(underlyingStore)
	ctx := context.Background()

	if err := store.Create(ctx, domain.NewSession("s", "o", time.Now()), 0); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Update(ctx, "s", domain.SessionPatch{Data: map[string]any{"API_Token": "abc", "city": "Recife"}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "s")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Data["API_Token"] != middleware.Mask || got.Data["city"] != "Recife" {
		t.Errorf("unexpected data after update: %v", got.Data)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}
