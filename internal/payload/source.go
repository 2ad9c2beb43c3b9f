// Package payload produces the encrypted advertisement payload: an opaque
// AEAD-sealed block binding the device identity to the current time under
// the provisioned master key.
package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the master key length in bytes.
const KeySize = chacha20poly1305.KeySize

// plaintextLen is the sealed block content: device ID (4) + epoch (4).
const plaintextLen = 8

// EncodedLen is the number of bytes Generate writes: the sealed plaintext
// plus the AEAD tag. It fits the service-data budget of a legacy
// advertisement with room to spare.
const EncodedLen = plaintextLen + chacha20poly1305.Overhead

// Generation errors.
var (
	ErrKeyNotSet       = errors.New("master key not set")
	ErrTimeUnavailable = errors.New("time source unavailable")
	ErrBufferTooSmall  = errors.New("payload buffer too small")
)

// Source produces a fresh payload into buf and returns the number of bytes
// written, or an error the caller treats as fatal for the current cycle.
type Source interface {
	Generate(buf []byte) (int, error)
}

// Clock supplies the current UTC time. A zero time means the time source is
// not (yet) available.
type Clock func() time.Time

// minValidTime guards against generating payloads before the clock has been
// set: a freshly booted device reports an epoch near zero.
var minValidTime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// EncryptedSource seals a device ID and time epoch with chacha20poly1305.
// The nonce is derived from the time, so payloads for distinct refresh
// cycles never repeat; generations within the same second are disambiguated
// by a monotonic bump.
//
// The key is injected once via SetKey; Generate fails with ErrKeyNotSet
// until then.
type EncryptedSource struct {
	deviceID uint32
	now      Clock

	mu       sync.Mutex
	sealFunc func(dst, nonce, plaintext, additionalData []byte) []byte
	lastUnix int64
}

// NewEncryptedSource creates a source for the given device identity.
// A nil clock defaults to time.Now.
func NewEncryptedSource(deviceID uint32, now Clock) *EncryptedSource {
	if now == nil {
		now = time.Now
	}
	return &EncryptedSource{
		deviceID: deviceID,
		now:      now,
	}
}

// SetKey installs the master key. The key must be exactly KeySize bytes;
// the source keeps its own copy.
func (s *EncryptedSource) SetKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("invalid key size: got %d bytes, need %d", len(key), KeySize)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	s.mu.Lock()
	s.sealFunc = aead.Seal
	s.mu.Unlock()
	return nil
}

// Generate seals a fresh payload into buf and returns its length.
func (s *EncryptedSource) Generate(buf []byte) (int, error) {
	if len(buf) < EncodedLen {
		return 0, fmt.Errorf("%w: %d < %d bytes", ErrBufferTooSmall, len(buf), EncodedLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealFunc == nil {
		return 0, ErrKeyNotSet
	}

	t := s.now()
	if t.IsZero() || t.Before(minValidTime) {
		return 0, ErrTimeUnavailable
	}

	// Nonce uniqueness per key: never reuse a second, even if the clock
	// stalls or two generations land inside one.
	unix := t.Unix()
	if unix <= s.lastUnix {
		unix = s.lastUnix + 1
	}
	s.lastUnix = unix

	var nonce [chacha20poly1305.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[0:8], uint64(unix))
	binary.BigEndian.PutUint32(nonce[8:12], s.deviceID)

	var plaintext [plaintextLen]byte
	binary.BigEndian.PutUint32(plaintext[0:4], s.deviceID)
	binary.BigEndian.PutUint32(plaintext[4:8], uint32(unix))

	out := s.sealFunc(buf[:0], nonce[:], plaintext[:], nil)
	return len(out), nil
}
