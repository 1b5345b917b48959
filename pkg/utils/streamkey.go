package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateStreamKey returns an opaque ingest capability token for a stream.
// The key is derived from the host, a random nonce and the current time, so
// it cannot be guessed from the stream id.
func GenerateStreamKey(hostID string) string {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%x:%d", hostID, nonce, time.Now().UnixNano())))
	return hex.EncodeToString(sum[:])[:32]
}
