package tally

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// ShareTokenBytes is the entropy of a share token.
const ShareTokenBytes = 32

// NewShareToken returns an unguessable URL-safe token.
func NewShareToken() (string, error) {
	buf := make([]byte, ShareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("tally: share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
