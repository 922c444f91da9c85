package game

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Digest is the sha256 of the canonical JSON encoding of the state. Map keys
// are sorted by encoding/json, so equal states always hash equal.
func (e *Engine) Digest() string {
	b, err := json.Marshal(e.state)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
