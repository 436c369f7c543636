package value

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HandleOf derives a content-addressed handle from raw content: the first
// eight bytes of its BLAKE2b-256 digest, read little-endian.
func HandleOf(content []byte) Handle {
	sum := blake2b.Sum256(content)
	return Handle(binary.LittleEndian.Uint64(sum[:8]))
}

// ParseHandle reads the 16-hex-digit form produced by Handle.String.
func ParseHandle(s string) (Handle, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return 0, false
	}
	return Handle(binary.LittleEndian.Uint64(b)), true
}
