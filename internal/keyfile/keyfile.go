// Package keyfile loads the base64-encoded master key the provisioning
// tooling writes to disk.
package keyfile

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/srg/beacond/internal/payload"
)

// Load reads and decodes a key file. The decoded key must be exactly
// payload.KeySize bytes.
func Load(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	key, err := Decode(string(raw))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return key, nil
}

// Decode decodes a base64 key string, tolerating surrounding whitespace.
func Decode(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != payload.KeySize {
		return nil, fmt.Errorf("key is %d bytes, need %d", len(key), payload.KeySize)
	}
	return key, nil
}
