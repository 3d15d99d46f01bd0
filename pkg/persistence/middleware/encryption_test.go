package middleware_test

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/persistence/middleware"
	"github.com/aretw0/cadence/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, store ports.SessionPersistence, cfg middleware.EncryptionConfig) ports.SessionPersistence {
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(store)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunSessionPersistenceContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	ctx := context.Background()
	s := domain.NewSession("test-session", "owner", time.Now())
	s.Data["secret"] = "my-secret-sauce"

	if err := secureStore.Create(ctx, s, 0); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stored, err := underlyingStore.Get(ctx, "test-session")
	if err != nil {
		t.Fatalf("Underlying get failed: %v", err)
	}
	if val, ok := stored.Data["secret"]; ok {
		t.Fatalf("Expected secret to be hidden, found: %v", val)
	}
	if _, ok := stored.Data[middleware.EnvelopeKey]; !ok {
		t.Fatal("Expected envelope field in data")
	}
	if stored.OwnerID != "owner" || !stored.Active {
		t.Errorf("metadata should stay in clear: %+v", stored)
	}

	loaded, err := secureStore.Get(ctx, "test-session")
	if err != nil {
		t.Fatalf("Get via middleware failed: %v", err)
	}
	if loaded.Data["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.Data["secret"])
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	oldStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: oldKey})
	ctx := context.Background()
	s := domain.NewSession("rotation-session", "owner", time.Now())
	s.Data["data"] = "encrypted-with-old-key"
	if err := oldStore.Create(ctx, s, 0); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Get(ctx, "rotation-session")
	if err != nil {
		t.Fatalf("Get with rotated key failed: %v", err)
	}
	if loaded.Data["data"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	// Update re-encrypts with the active key.
	if err := newStore.Update(ctx, "rotation-session", domain.SessionPatch{Data: map[string]any{"data": "encrypted-with-new-key"}}); err != nil {
		t.Fatalf("Update with new key failed: %v", err)
	}
	if _, err := oldStore.Get(ctx, "rotation-session"); err == nil {
		t.Error("Expected failure when reading new-key data with the old key only")
	}
}

func TestEncryptionMiddleware_PlainSessionRejected(t *testing.T) {
	underlyingStore := memory.NewStore()
	ctx := context.Background()
	if err := underlyingStore.Create(ctx, domain.NewSession("plain", "o", time.Now()), 0); err != nil {
		t.Fatal(err)
	}

	_, err := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).Get(ctx, "plain")
	if !errors.Is(err, middleware.ErrMissingEnvelope) {
		t.Errorf("Expected ErrMissingEnvelope, got %v", err)
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); err == nil {
		t.Error("Expected error for invalid key size")
	}
}

func TestChain_Order(t *testing.T) {
	underlyingStore := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"password"})
	if err != nil {
		t.Fatal(err)
	}
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if err != nil {
		t.Fatal(err)
	}
	store := middleware.Chain(underlyingStore, pii, enc)

	ctx := context.Background()
	s := domain.NewSession("chained", "o", time.Now())
	s.Data["password"] = "hunter2"
	if err := store.Create(ctx, s, 0); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "chained")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Data["password"] != middleware.Mask {
		t.Errorf("Expected masked password after decrypt, got %v", got.Data["password"])
	}
}
