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

	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
)

// EnvelopeKey holds the ciphertext in the Variables of a stored session.
const EnvelopeKey = "__encrypted__"

// ErrNotEncrypted is returned when a stored session carries no envelope.
var ErrNotEncrypted = errors.New("session is missing its encrypted envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt.
	// This enables key rotation without downtime.
	FallbackKeys [][]byte
}

// Validate checks the key sizes.
func (c EncryptionConfig) Validate() error {
	if len(c.ActiveKey) != 32 {
		return fmt.Errorf("active key must be 32 bytes, got %d", len(c.ActiveKey))
	}
	for i, k := range c.FallbackKeys {
		if len(k) != 32 {
			return fmt.Errorf("fallback key %d must be 32 bytes, got %d", i, len(k))
		}
	}
	return nil
}

// sealed is the part of a session that only leaves the process encrypted.
type sealed struct {
	Variables     map[string]any    `json:"variables"`
	SlotValues    map[string]string `json:"slot_values"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	PauseReason   string            `json:"pause_reason,omitempty"`
	HandoffReason string            `json:"handoff_reason,omitempty"`
	Events        *domain.EventLog  `json:"events"`
}

type encryptionMiddleware struct {
	next   ports.SessionStore
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts session variables, slot values, reasons
// and the event log with AES-GCM. Routing fields (status, conversation,
// current node, revision) stay readable so the wrapped store can still
// resolve active sessions and detect revision conflicts.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, session *domain.Session) error {
	plainText, err := json.Marshal(sealed{
		Variables:     session.Variables,
		SlotValues:    session.SlotValues,
		MissingFields: session.MissingFields,
		PauseReason:   session.PauseReason,
		HandoffReason: session.HandoffReason,
		Events:        session.Events,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt session data: %w", err)
	}

	capacity := 0
	if session.Events != nil {
		capacity = session.Events.Cap()
	}
	envelope := *session
	envelope.Variables = map[string]any{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	envelope.SlotValues = map[string]string{}
	envelope.MissingFields = nil
	envelope.PauseReason = ""
	envelope.HandoffReason = ""
	envelope.Events = domain.NewEventLog(capacity)

	if err := m.next.Save(ctx, &envelope); err != nil {
		return err
	}
	session.Revision = envelope.Revision
	session.UpdatedAt = envelope.UpdatedAt
	return nil
}

func (m *encryptionMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	envelope, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) FindActive(ctx context.Context, conversationID string) (*domain.Session, error) {
	envelope, err := m.next.FindActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// open fails closed: a session stored in plain text is an error, not a fallback.
func (m *encryptionMiddleware) open(envelope *domain.Session) (*domain.Session, error) {
	encoded, ok := envelope.Variables[EnvelopeKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEncrypted, envelope.ID)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session %s: %w", envelope.ID, err)
	}

	var data sealed
	if err := json.Unmarshal(plainText, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	s := *envelope
	s.Variables = data.Variables
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}
	s.SlotValues = data.SlotValues
	if s.SlotValues == nil {
		s.SlotValues = make(map[string]string)
	}
	s.MissingFields = data.MissingFields
	s.PauseReason = data.PauseReason
	s.HandoffReason = data.HandoffReason
	s.Events = data.Events
	if s.Events == nil {
		s.Events = envelope.Events
	}
	return &s, nil
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

// ParseKey decodes a base64 key as found in configuration.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
