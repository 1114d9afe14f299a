package idempotency

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Hasher derives idempotency keys from message identity and body.
type Hasher struct {
	algorithm string
}

// NewHasher accepts md5, sha1 or sha256. Anything else falls back to sha256.
func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// Key hashes messageID and body separated by a NUL byte, so ("ab","c") and
// ("a","bc") never collide.
func (h *Hasher) Key(messageID string, body []byte) string {
	var d hash.Hash
	switch h.algorithm {
	case "md5":
		d = md5.New()
	case "sha1":
		d = sha1.New()
	default:
		d = sha256.New()
	}
	d.Write([]byte(messageID))
	d.Write([]byte{0})
	d.Write(body)
	return hex.EncodeToString(d.Sum(nil))
}
