package common

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// DigestKey builds a Redis key of the form "<prefix>:<hex sha256>". Each
// part is length-prefixed before hashing so ("a|b","c") and ("a","b|c")
// never share a key.
func DigestKey(prefix string, parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}
