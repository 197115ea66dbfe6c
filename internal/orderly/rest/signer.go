package rest

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Signer signs Orderly requests with the account's ed25519 key. The API
// secret is a base58 seed, optionally carrying the "ed25519:" prefix the
// Orderly dashboard exports.
type Signer struct {
	key ed25519.PrivateKey
}

func NewSigner(apiSecret string) (*Signer, error) {
	seed := strings.TrimPrefix(strings.TrimSpace(apiSecret), "ed25519:")
	if seed == "" {
		return nil, fmt.Errorf("api secret is empty")
	}
	raw, err := base58.Decode(seed)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("api secret seed must be %d bytes, got %d", ed25519.SeedSize, len(raw))
	}
	return &Signer{key: ed25519.NewKeyFromSeed(raw)}, nil
}

// Sign produces the urlsafe-base64 signature over
// "{timestamp}{METHOD}{path}{body}" where path includes the query string.
func (s *Signer) Sign(timestampMS int64, method, path, body string) string {
	message := strconv.FormatInt(timestampMS, 10) + strings.ToUpper(method) + path + body
	sig := ed25519.Sign(s.key, []byte(message))
	return base64.URLEncoding.EncodeToString(sig)
}

// PublicKey exposes the verifying key for tests and diagnostics.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}
