package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// EnvelopeKey is the only Data key written to the wrapped store.
const EnvelopeKey = "__encrypted__"

// ErrMissingEnvelope is returned when a stored session was not written by the encryption middleware.
var ErrMissingEnvelope = errors.New("session is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key fails to decrypt.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.SessionPersistence
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts Session.Data with AES-GCM.
// Identity, owner, timestamps and the active flag stay in clear so stores can
// still expire and list sessions.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(config.ActiveKey))
	}
	return func(next ports.SessionPersistence) ports.SessionPersistence {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Create(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	envelope, err := m.seal(session.Data)
	if err != nil {
		return err
	}
	cp := *session
	cp.Data = envelope
	return m.next.Create(ctx, &cp, ttl)
}

func (m *encryptionMiddleware) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	stored, err := m.next.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := m.open(stored.Data)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	stored.Data = data
	return stored, nil
}

// Update decrypts, merges and re-encrypts. Callers that need atomicity hold
// the session lock, as the session manager does.
func (m *encryptionMiddleware) Update(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	if len(patch.Data) == 0 {
		return m.next.Update(ctx, sessionID, patch)
	}
	current, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if current.Data == nil {
		current.Data = make(map[string]any, len(patch.Data))
	}
	maps.Copy(current.Data, patch.Data)

	envelope, err := m.seal(current.Data)
	if err != nil {
		return err
	}
	return m.next.Update(ctx, sessionID, domain.SessionPatch{Data: envelope, Active: patch.Active})
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) seal(data map[string]any) (map[string]any, error) {
	plainText, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session data: %w", err)
	}
	return map[string]any{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}, nil
}

func (m *encryptionMiddleware) open(envelope map[string]any) (map[string]any, error) {
	encoded, ok := envelope[EnvelopeKey].(string)
	if !ok {
		return nil, ErrMissingEnvelope
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session data: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(plainText, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted session data: %w", err)
	}
	if data == nil {
		data = make(map[string]any)
	}
	return data, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
